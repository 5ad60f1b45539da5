// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package nanotec

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Options selects the drive and its gearing.
type Options struct {
	Addr              string // host:port of the drive's Modbus TCP endpoint
	UnitID            byte
	EncoderResolution int           // counts per revolution
	Timeout           time.Duration // per request, default 1s
	HomeTimeout       time.Duration // default 30s
	Registers         *RegisterMap  // nil uses DefaultRegisters
}

// Drive commands a Nanotec servo drive through its CiA 402 object dictionary
// over Modbus TCP. It homes in mode 6, turns in profile velocity mode and
// reports the encoder position in degrees.
type Drive struct {
	mu           sync.Mutex
	handler      *modbus.TCPClientHandler
	client       modbus.Client
	regs         RegisterMap
	countsPerRev int
	homeTimeout  time.Duration
}

// Connect dials the drive, verifies it answers and walks the power state
// machine up to Operation enabled.
func Connect(opts Options) (*Drive, error) {
	if opts.EncoderResolution <= 0 {
		return nil, fmt.Errorf("nanotec: encoder resolution must be positive, got %d", opts.EncoderResolution)
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if opts.HomeTimeout == 0 {
		opts.HomeTimeout = 30 * time.Second
	}
	regs := DefaultRegisters()
	if opts.Registers != nil {
		regs = *opts.Registers
	}

	handler := modbus.NewTCPClientHandler(opts.Addr)
	handler.Timeout = opts.Timeout
	handler.SlaveId = opts.UnitID
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("nanotec: connecting to %s: %w", opts.Addr, err)
	}

	d := &Drive{
		handler:      handler,
		client:       modbus.NewClient(handler),
		regs:         regs,
		countsPerRev: opts.EncoderResolution,
		homeTimeout:  opts.HomeTimeout,
	}

	status, err := d.readStatus()
	if err != nil {
		handler.Close()
		return nil, fmt.Errorf("nanotec: drive not answering at %s unit %d: %w", opts.Addr, opts.UnitID, err)
	}
	if err := d.enableOperation(); err != nil {
		handler.Close()
		return nil, err
	}

	log.Printf("nanotec: connected to %s unit %d, statusword %#04x, %d counts/rev",
		opts.Addr, opts.UnitID, status, opts.EncoderResolution)
	return d, nil
}

// enableOperation walks Shutdown -> Switch on -> Enable operation.
func (d *Drive) enableOperation() error {
	for _, cw := range []uint16{cwShutdown, cwSwitchOn, cwEnable} {
		if err := d.writeControl(cw); err != nil {
			return fmt.Errorf("nanotec: enabling operation (controlword %#04x): %w", cw, err)
		}
	}
	return nil
}

// Home runs the drive's homing method and blocks until the reference is
// found or the timeout passes.
func (d *Drive) Home() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setMode(modeHoming); err != nil {
		return err
	}
	if err := d.writeControl(cwEnable); err != nil {
		return fmt.Errorf("nanotec: preparing homing: %w", err)
	}
	if err := d.writeControl(cwStartHome); err != nil {
		return fmt.Errorf("nanotec: starting homing: %w", err)
	}

	deadline := time.Now().Add(d.homeTimeout)
	for {
		status, err := d.readStatus()
		if err != nil {
			return fmt.Errorf("nanotec: polling homing: %w", err)
		}
		if status&swFault != 0 || status&swHomingError != 0 {
			return fmt.Errorf("nanotec: homing failed, statusword %#04x", status)
		}
		if status&swHomingAttained != 0 && status&swTargetReached != 0 {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("nanotec: homing timed out after %v, statusword %#04x", d.homeTimeout, status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Clear the homing start bit before leaving the mode.
	if err := d.writeControl(cwEnable); err != nil {
		return fmt.Errorf("nanotec: finishing homing: %w", err)
	}
	log.Printf("nanotec: homing complete")
	return nil
}

// MoveContinuous turns the motor at the signed velocity in deg/s until Stop.
func (d *Drive) MoveContinuous(velocityDegPerSec float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setMode(modeProfileVelocity); err != nil {
		return err
	}

	// Target velocity is in rpm: deg/s * 60/360. A nonzero command must not
	// round down to standstill.
	rpm := int32(math.Round(velocityDegPerSec / 6.0))
	if rpm == 0 && velocityDegPerSec != 0 {
		if velocityDegPerSec > 0 {
			rpm = 1
		} else {
			rpm = -1
		}
	}

	if _, err := d.client.WriteMultipleRegisters(d.regs.TargetVelocity, 2, encodeInt32(rpm)); err != nil {
		return fmt.Errorf("nanotec: writing target velocity %d rpm: %w", rpm, err)
	}
	if err := d.writeControl(cwEnable); err != nil {
		return fmt.Errorf("nanotec: starting motion: %w", err)
	}
	log.Printf("nanotec: turning at %.2f deg/s (%d rpm)", velocityDegPerSec, rpm)
	return nil
}

// Stop quick-stops the axis and re-enables it so the next start works
// without a power cycle.
func (d *Drive) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeControl(cwQuickStop); err != nil {
		return fmt.Errorf("nanotec: quick stop: %w", err)
	}
	if err := d.enableOperation(); err != nil {
		return fmt.Errorf("nanotec: re-enabling after stop: %w", err)
	}
	return nil
}

// ReportedPosition reads the encoder and converts counts to degrees.
func (d *Drive) ReportedPosition() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	results, err := d.client.ReadHoldingRegisters(d.regs.ActualPosition, 2)
	if err != nil {
		return 0, fmt.Errorf("nanotec: reading position: %w", err)
	}
	counts, err := decodeInt32(results)
	if err != nil {
		return 0, fmt.Errorf("nanotec: reading position: %w", err)
	}
	return float64(counts) * 360.0 / float64(d.countsPerRev), nil
}

// Close disables the power stage and drops the connection.
func (d *Drive) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeControl(cwDisable); err != nil {
		log.Printf("nanotec: disabling drive: %v", err)
	}
	if err := d.handler.Close(); err != nil {
		return fmt.Errorf("nanotec: closing connection: %w", err)
	}
	return nil
}

func (d *Drive) writeControl(value uint16) error {
	_, err := d.client.WriteSingleRegister(d.regs.Controlword, value)
	return err
}

func (d *Drive) setMode(mode uint16) error {
	if _, err := d.client.WriteSingleRegister(d.regs.ModeOfOperation, mode); err != nil {
		return fmt.Errorf("nanotec: setting mode %d: %w", mode, err)
	}
	return nil
}

func (d *Drive) readStatus() (uint16, error) {
	results, err := d.client.ReadHoldingRegisters(d.regs.Statusword, 1)
	if err != nil {
		return 0, err
	}
	if len(results) < 2 {
		return 0, fmt.Errorf("short statusword response (%d bytes)", len(results))
	}
	return binary.BigEndian.Uint16(results), nil
}

// encodeInt32 lays a 32-bit object into two Modbus registers, low word at
// the lower address.
func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], uint16(uint32(v)&0xFFFF))
	binary.BigEndian.PutUint16(b[2:4], uint16(uint32(v)>>16))
	return b
}

func decodeInt32(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("short register response (%d bytes)", len(b))
	}
	lo := binary.BigEndian.Uint16(b[0:2])
	hi := binary.BigEndian.Uint16(b[2:4])
	return int32(uint32(hi)<<16 | uint32(lo)), nil
}
