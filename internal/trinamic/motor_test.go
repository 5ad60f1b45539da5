package trinamic

import (
	"bytes"
	"encoding/binary"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePort captures written frames and serves queued replies.
type fakePort struct {
	mu     sync.Mutex
	writes [][]byte
	rbuf   bytes.Buffer
	closed int
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rbuf.Read(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePort) queueReply(status byte, value int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := make([]byte, frameLen)
	b[0] = 2 // host address
	b[1] = 1 // module address
	b[2] = status
	b[3] = 0
	binary.BigEndian.PutUint32(b[4:8], uint32(value))
	b[8] = checksum(b[:8])
	p.rbuf.Write(b)
}

func (p *fakePort) sentFrames() []request {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := make([]request, 0, len(p.writes))
	for _, w := range p.writes {
		frames = append(frames, request{
			Address: w[0],
			Command: w[1],
			Type:    w[2],
			Motor:   w[3],
			Value:   int32(binary.BigEndian.Uint32(w[4:8])),
		})
	}
	return frames
}

func newTestMotor(p *fakePort) *Motor {
	return &Motor{
		port:        p,
		addr:        1,
		stepsPerDeg: 100,
		refTimeout:  500 * time.Millisecond,
	}
}

func TestRequestEncoding(t *testing.T) {
	req := request{Address: 1, Command: cmdROR, Type: 0, Motor: 0, Value: 9000}
	got := req.encode()
	want := []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x23, 0x28, 0x4D}
	if !bytes.Equal(got, want) {
		t.Errorf("encode() = % x, want % x", got, want)
	}
}

func TestReplyDecoding(t *testing.T) {
	p := &fakePort{}
	p.queueReply(statusOK, -4500)

	rep, err := decodeReply(p.rbuf.Bytes())
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if rep.Status != statusOK || rep.Value != -4500 {
		t.Errorf("reply = %+v, want status 100 value -4500", rep)
	}

	corrupt := append([]byte(nil), p.rbuf.Bytes()...)
	corrupt[8] ^= 0xFF
	if _, err := decodeReply(corrupt); err == nil {
		t.Error("decodeReply accepted a bad checksum")
	}
	if _, err := decodeReply(corrupt[:5]); err == nil {
		t.Error("decodeReply accepted a short frame")
	}
}

func TestMoveContinuousPicksDirection(t *testing.T) {
	p := &fakePort{}
	p.queueReply(statusOK, 0)
	p.queueReply(statusOK, 0)
	m := newTestMotor(p)

	if err := m.MoveContinuous(90); err != nil {
		t.Fatalf("MoveContinuous: %v", err)
	}
	if err := m.MoveContinuous(-90); err != nil {
		t.Fatalf("MoveContinuous reverse: %v", err)
	}

	frames := p.sentFrames()
	if len(frames) != 2 {
		t.Fatalf("sent %d frames, want 2", len(frames))
	}
	if frames[0].Command != cmdROR || frames[0].Value != 9000 {
		t.Errorf("forward frame = %+v, want ROR 9000 steps/s", frames[0])
	}
	if frames[1].Command != cmdROL || frames[1].Value != 9000 {
		t.Errorf("reverse frame = %+v, want ROL 9000 steps/s", frames[1])
	}
}

func TestMoveContinuousNeverRoundsToStandstill(t *testing.T) {
	p := &fakePort{}
	p.queueReply(statusOK, 0)
	m := newTestMotor(p)
	m.stepsPerDeg = 0.1

	if err := m.MoveContinuous(0.5); err != nil {
		t.Fatalf("MoveContinuous: %v", err)
	}
	frames := p.sentFrames()
	if frames[0].Value != 1 {
		t.Errorf("velocity = %d steps/s, want floor of 1", frames[0].Value)
	}
}

func TestStopSendsMST(t *testing.T) {
	p := &fakePort{}
	p.queueReply(statusOK, 0)
	m := newTestMotor(p)

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	frames := p.sentFrames()
	if len(frames) != 1 || frames[0].Command != cmdMST {
		t.Errorf("frames = %+v, want one MST", frames)
	}
}

func TestReportedPositionConvertsSteps(t *testing.T) {
	p := &fakePort{}
	p.queueReply(statusOK, 18000)
	m := newTestMotor(p)

	deg, err := m.ReportedPosition()
	if err != nil {
		t.Fatalf("ReportedPosition: %v", err)
	}
	if deg != 180.0 {
		t.Errorf("position = %g deg, want 18000 steps / 100 = 180", deg)
	}
	frames := p.sentFrames()
	if frames[0].Command != cmdGAP || frames[0].Type != paramActualPosition {
		t.Errorf("frame = %+v, want GAP actual position", frames[0])
	}
}

func TestRejectedCommandSurfacesStatus(t *testing.T) {
	p := &fakePort{}
	p.queueReply(2, 0) // invalid command
	m := newTestMotor(p)

	err := m.Stop()
	if err == nil || !strings.Contains(err.Error(), "invalid command") {
		t.Errorf("Stop error = %v, want invalid command status", err)
	}
}

func TestHomePollsReferenceSearch(t *testing.T) {
	p := &fakePort{}
	p.queueReply(statusOK, 0) // RFS start
	p.queueReply(statusOK, 1) // still searching
	p.queueReply(statusOK, 0) // done
	m := newTestMotor(p)

	if err := m.Home(); err != nil {
		t.Fatalf("Home: %v", err)
	}
	frames := p.sentFrames()
	if len(frames) != 3 {
		t.Fatalf("sent %d frames, want 3", len(frames))
	}
	if frames[0].Command != cmdRFS || frames[0].Type != rfsStart {
		t.Errorf("first frame = %+v, want RFS start", frames[0])
	}
	if frames[1].Type != rfsStatus || frames[2].Type != rfsStatus {
		t.Errorf("poll frames = %+v, want RFS status", frames[1:])
	}
}

func TestHomeTimesOutAndAborts(t *testing.T) {
	p := &fakePort{}
	p.queueReply(statusOK, 0) // RFS start
	for i := 0; i < 20; i++ {
		p.queueReply(statusOK, 1) // never finishes
	}
	p.queueReply(statusOK, 0) // RFS stop ack
	m := newTestMotor(p)
	m.refTimeout = 120 * time.Millisecond

	err := m.Home()
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Home error = %v, want timeout", err)
	}
	frames := p.sentFrames()
	last := frames[len(frames)-1]
	if last.Command != cmdRFS || last.Type != rfsStop {
		t.Errorf("last frame = %+v, want RFS stop", last)
	}
}
