package nanotec

import (
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeModbus answers like a drive: scripted statuswords, captured writes.
type fakeModbus struct {
	mu            sync.Mutex
	regs          RegisterMap
	statusScript  []uint16 // consumed one per read, last value sticks
	statusIndex   int
	position      int32
	lastVelocity  int32
	controlWrites []uint16
	modeWrites    []uint16
	readErr       error
}

func newFakeModbus() *fakeModbus {
	return &fakeModbus{
		regs:         DefaultRegisters(),
		statusScript: []uint16{0x0237},
	}
}

func (f *fakeModbus) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	switch address {
	case f.regs.Statusword:
		status := f.statusScript[f.statusIndex]
		if f.statusIndex < len(f.statusScript)-1 {
			f.statusIndex++
		}
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, status)
		return b, nil
	case f.regs.ActualPosition:
		return encodeInt32(f.position), nil
	}
	return nil, errors.New("unexpected read address")
}

func (f *fakeModbus) WriteSingleRegister(address, value uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch address {
	case f.regs.Controlword:
		f.controlWrites = append(f.controlWrites, value)
	case f.regs.ModeOfOperation:
		f.modeWrites = append(f.modeWrites, value)
	default:
		return nil, errors.New("unexpected write address")
	}
	return nil, nil
}

func (f *fakeModbus) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if address != f.regs.TargetVelocity {
		return nil, errors.New("unexpected multi-register write")
	}
	v, err := decodeInt32(value)
	if err != nil {
		return nil, err
	}
	f.lastVelocity = v
	return nil, nil
}

func (f *fakeModbus) controls() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint16(nil), f.controlWrites...)
}

// Remaining modbus.Client methods, unused by the drive.
func (f *fakeModbus) ReadCoils(address, quantity uint16) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeModbus) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeModbus) WriteSingleCoil(address, value uint16) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeModbus) WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeModbus) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeModbus) ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, value []byte) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeModbus) MaskWriteRegister(address, andMask, orMask uint16) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeModbus) ReadFIFOQueue(address uint16) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func newTestDrive(f *fakeModbus) *Drive {
	return &Drive{
		client:       f,
		regs:         DefaultRegisters(),
		countsPerRev: 8192,
		homeTimeout:  500 * time.Millisecond,
	}
}

func TestMoveContinuousWritesVelocity(t *testing.T) {
	f := newFakeModbus()
	d := newTestDrive(f)

	if err := d.MoveContinuous(90); err != nil {
		t.Fatalf("MoveContinuous: %v", err)
	}
	if f.lastVelocity != 15 {
		t.Errorf("target velocity = %d rpm, want 90 deg/s = 15 rpm", f.lastVelocity)
	}
	if len(f.modeWrites) != 1 || f.modeWrites[0] != modeProfileVelocity {
		t.Errorf("mode writes = %v, want [%d]", f.modeWrites, modeProfileVelocity)
	}
	controls := f.controls()
	if len(controls) != 1 || controls[0] != cwEnable {
		t.Errorf("control writes = %#04x, want [%#04x]", controls, cwEnable)
	}

	if err := d.MoveContinuous(-90); err != nil {
		t.Fatalf("MoveContinuous reverse: %v", err)
	}
	if f.lastVelocity != -15 {
		t.Errorf("reverse velocity = %d rpm, want -15", f.lastVelocity)
	}
}

func TestMoveContinuousNeverRoundsToStandstill(t *testing.T) {
	f := newFakeModbus()
	d := newTestDrive(f)

	if err := d.MoveContinuous(1); err != nil {
		t.Fatalf("MoveContinuous: %v", err)
	}
	if f.lastVelocity != 1 {
		t.Errorf("velocity = %d rpm, want floor of 1 rpm", f.lastVelocity)
	}

	if err := d.MoveContinuous(-0.5); err != nil {
		t.Fatalf("MoveContinuous: %v", err)
	}
	if f.lastVelocity != -1 {
		t.Errorf("velocity = %d rpm, want -1", f.lastVelocity)
	}
}

func TestStopQuickStopsThenReenables(t *testing.T) {
	f := newFakeModbus()
	d := newTestDrive(f)

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := []uint16{cwQuickStop, cwShutdown, cwSwitchOn, cwEnable}
	got := f.controls()
	if len(got) != len(want) {
		t.Fatalf("control writes = %#04x, want %#04x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("control writes = %#04x, want %#04x", got, want)
		}
	}
}

func TestReportedPositionConvertsCounts(t *testing.T) {
	tests := []struct {
		counts int32
		want   float64
	}{
		{0, 0},
		{4096, 180},
		{8192, 360},
		{-8192, -360},
		{12288, 540},
	}
	for _, tt := range tests {
		f := newFakeModbus()
		f.position = tt.counts
		d := newTestDrive(f)

		got, err := d.ReportedPosition()
		if err != nil {
			t.Fatalf("ReportedPosition(%d): %v", tt.counts, err)
		}
		if got != tt.want {
			t.Errorf("ReportedPosition(%d counts) = %g, want %g", tt.counts, got, tt.want)
		}
	}
}

func TestReportedPositionReadFailure(t *testing.T) {
	f := newFakeModbus()
	f.readErr = errors.New("connection reset")
	d := newTestDrive(f)

	if _, err := d.ReportedPosition(); err == nil {
		t.Fatal("ReportedPosition succeeded with a failing link")
	}
}

func TestHomeWaitsForReference(t *testing.T) {
	f := newFakeModbus()
	// Busy twice, then homing attained + target reached.
	f.statusScript = []uint16{0x0237, 0x0237, 0x1637}
	d := newTestDrive(f)

	if err := d.Home(); err != nil {
		t.Fatalf("Home: %v", err)
	}
	if len(f.modeWrites) != 1 || f.modeWrites[0] != modeHoming {
		t.Errorf("mode writes = %v, want [%d]", f.modeWrites, modeHoming)
	}
	controls := f.controls()
	if len(controls) != 3 || controls[0] != cwEnable || controls[1] != cwStartHome || controls[2] != cwEnable {
		t.Errorf("control writes = %#04x, want enable, start, enable", controls)
	}
}

func TestHomeReportsDriveFault(t *testing.T) {
	f := newFakeModbus()
	f.statusScript = []uint16{0x0237, 0x2237} // homing error bit set
	d := newTestDrive(f)

	err := d.Home()
	if err == nil || !strings.Contains(err.Error(), "homing failed") {
		t.Errorf("Home error = %v, want homing failure", err)
	}
}

func TestHomeTimesOut(t *testing.T) {
	f := newFakeModbus()
	f.statusScript = []uint16{0x0237} // never attains
	d := newTestDrive(f)
	d.homeTimeout = 120 * time.Millisecond

	err := d.Home()
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Home error = %v, want timeout", err)
	}
}

func TestInt32RegisterLayout(t *testing.T) {
	// Low word sits at the lower register address.
	b := encodeInt32(0x12345678)
	want := []byte{0x56, 0x78, 0x12, 0x34}
	for i := range want {
		if b[i] != want[i] {
			t.Fatalf("encodeInt32(0x12345678) = % x, want % x", b, want)
		}
	}

	v, err := decodeInt32([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatalf("decodeInt32: %v", err)
	}
	if v != -1 {
		t.Errorf("decodeInt32(all ones) = %d, want -1", v)
	}

	if _, err := decodeInt32([]byte{0x00, 0x01}); err == nil {
		t.Error("decodeInt32 accepted a short buffer")
	}
}
