// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package trinamic

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// Options selects the module and its gearing.
type Options struct {
	Port        string
	Baud        int
	Address     byte    // module address, default 1
	StepsPerDeg float64 // microsteps per degree of output shaft
	RefTimeout  time.Duration
}

// Motor commands a Trinamic stepper module over TMCL. Velocities go out as
// microsteps per second; positions come back as microsteps.
type Motor struct {
	mu          sync.Mutex
	port        io.ReadWriteCloser
	addr        byte
	stepsPerDeg float64
	refTimeout  time.Duration
}

// Connect opens the serial port and verifies the module answers.
func Connect(opts Options) (*Motor, error) {
	if opts.StepsPerDeg <= 0 {
		return nil, fmt.Errorf("trinamic: steps per degree must be positive, got %g", opts.StepsPerDeg)
	}
	if opts.Address == 0 {
		opts.Address = 1
	}
	if opts.RefTimeout == 0 {
		opts.RefTimeout = 30 * time.Second
	}

	serialOpts := serial.OpenOptions{
		PortName:              opts.Port,
		BaudRate:              uint(opts.Baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 500,
	}
	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("trinamic: opening %s: %w", opts.Port, err)
	}

	m := &Motor{
		port:        port,
		addr:        opts.Address,
		stepsPerDeg: opts.StepsPerDeg,
		refTimeout:  opts.RefTimeout,
	}

	pos, err := m.exchange(cmdGAP, paramActualPosition, 0, 0)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("trinamic: module %d not answering on %s: %w", opts.Address, opts.Port, err)
	}

	log.Printf("trinamic: connected to module %d on %s at %d baud, position %d steps",
		opts.Address, opts.Port, opts.Baud, pos)
	return m, nil
}

// Home starts a reference search and blocks until the switch is found or
// the timeout passes.
func (m *Motor) Home() error {
	if _, err := m.exchange(cmdRFS, rfsStart, 0, 0); err != nil {
		return fmt.Errorf("trinamic: starting reference search: %w", err)
	}

	deadline := time.Now().Add(m.refTimeout)
	for {
		active, err := m.exchange(cmdRFS, rfsStatus, 0, 0)
		if err != nil {
			return fmt.Errorf("trinamic: polling reference search: %w", err)
		}
		if active == 0 {
			break
		}
		if time.Now().After(deadline) {
			if _, err := m.exchange(cmdRFS, rfsStop, 0, 0); err != nil {
				log.Printf("trinamic: aborting reference search: %v", err)
			}
			return fmt.Errorf("trinamic: reference search timed out after %v", m.refTimeout)
		}
		time.Sleep(50 * time.Millisecond)
	}

	log.Printf("trinamic: reference search complete")
	return nil
}

// MoveContinuous turns the motor at the signed velocity in deg/s until Stop.
func (m *Motor) MoveContinuous(velocityDegPerSec float64) error {
	pps := int32(math.Round(math.Abs(velocityDegPerSec) * m.stepsPerDeg))
	if pps == 0 && velocityDegPerSec != 0 {
		pps = 1
	}

	cmd := byte(cmdROR)
	if velocityDegPerSec < 0 {
		cmd = cmdROL
	}
	if _, err := m.exchange(cmd, 0, 0, pps); err != nil {
		return fmt.Errorf("trinamic: rotating at %d steps/s: %w", pps, err)
	}
	log.Printf("trinamic: turning at %.2f deg/s (%d steps/s)", velocityDegPerSec, pps)
	return nil
}

// Stop halts the axis.
func (m *Motor) Stop() error {
	if _, err := m.exchange(cmdMST, 0, 0, 0); err != nil {
		return fmt.Errorf("trinamic: motor stop: %w", err)
	}
	return nil
}

// ReportedPosition reads the actual position and converts steps to degrees.
func (m *Motor) ReportedPosition() (float64, error) {
	steps, err := m.exchange(cmdGAP, paramActualPosition, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("trinamic: reading position: %w", err)
	}
	return float64(steps) / m.stepsPerDeg, nil
}

// Close stops the axis and releases the port.
func (m *Motor) Close() error {
	if _, err := m.exchange(cmdMST, 0, 0, 0); err != nil {
		log.Printf("trinamic: stop on close: %v", err)
	}
	if err := m.port.Close(); err != nil {
		return fmt.Errorf("trinamic: closing port: %w", err)
	}
	return nil
}

// exchange sends one request frame and reads the matching reply.
func (m *Motor) exchange(cmd, typ, motor byte, value int32) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req := request{Address: m.addr, Command: cmd, Type: typ, Motor: motor, Value: value}
	if _, err := m.port.Write(req.encode()); err != nil {
		return 0, fmt.Errorf("writing command %d: %w", cmd, err)
	}

	buf := make([]byte, frameLen)
	if _, err := io.ReadFull(m.port, buf); err != nil {
		return 0, fmt.Errorf("reading reply to command %d: %w", cmd, err)
	}
	rep, err := decodeReply(buf)
	if err != nil {
		return 0, fmt.Errorf("reply to command %d: %w", cmd, err)
	}
	if rep.Status != statusOK {
		return 0, fmt.Errorf("command %d rejected: %s", cmd, statusText(rep.Status))
	}
	return rep.Value, nil
}
