// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package daq

import (
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// Options selects the ADS1115 and the conversion setup shared by all its
// channels.
type Options struct {
	Bus       string  // empty selects the first available I2C bus
	Addr      uint16  // 0x48-0x4B depending on the ADDR pin strap
	FullScale float64 // volts, one of the ADS1115 input ranges
	Rate      int     // samples per second
}

// Board is one ADS1115 converter. Channel readers share the board and
// serialize their conversions; the last reader closed shuts the bus down.
type Board struct {
	mu        sync.Mutex
	bus       i2c.BusCloser
	dev       *ads1x15.Dev
	fullScale float64
	rate      int
	readers   int
	closed    bool
}

// Open connects to the converter and verifies it answers on the bus.
func Open(opts Options) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("daq: periph host init: %w", err)
	}

	bus, err := i2creg.Open(opts.Bus)
	if err != nil {
		return nil, fmt.Errorf("daq: I2C open (%q): %w", opts.Bus, err)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: opts.Addr})
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("daq: ADS1115 at %#x: %w", opts.Addr, err)
	}

	log.Printf("daq: ADS1115 on %s addr %#x, full scale ±%gV at %d samples/s",
		bus, opts.Addr, opts.FullScale, opts.Rate)
	return &Board{
		bus:       bus,
		dev:       dev,
		fullScale: opts.FullScale,
		rate:      opts.Rate,
	}, nil
}

// Reader prepares one single-ended channel for reading.
func (b *Board) Reader(channel int) (*Reader, error) {
	input, err := inputForChannel(channel)
	if err != nil {
		return nil, err
	}

	maxV := physic.ElectricPotential(b.fullScale * float64(physic.Volt))
	freq := physic.Frequency(b.rate) * physic.Hertz
	pin, err := b.dev.PinForChannel(input, maxV, freq, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("daq: channel %d setup: %w", channel, err)
	}

	b.mu.Lock()
	b.readers++
	b.mu.Unlock()
	return &Reader{board: b, pin: pin, channel: channel}, nil
}

// Close shuts the bus down regardless of open readers. Used on teardown
// after a partial setup; normal shutdown goes through the readers.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeBusLocked()
}

// Closed reports whether the bus has been shut down. A closed board cannot
// be reopened; callers open a fresh one.
func (b *Board) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Board) closeBusLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.bus.Close(); err != nil {
		return fmt.Errorf("daq: closing I2C bus: %w", err)
	}
	return nil
}

func inputForChannel(channel int) (ads1x15.Channel, error) {
	switch channel {
	case 0:
		return ads1x15.Channel0, nil
	case 1:
		return ads1x15.Channel1, nil
	case 2:
		return ads1x15.Channel2, nil
	case 3:
		return ads1x15.Channel3, nil
	default:
		return ads1x15.Channel0, fmt.Errorf("daq: channel must be 0-3, got %d", channel)
	}
}

// Reader reads one analog input. It serves both the torque signal and the
// analog angle signal; for the angle the raw value is the channel voltage.
type Reader struct {
	board   *Board
	pin     ads1x15.PinADC
	channel int
	closed  bool
}

// ReadVoltage performs one conversion and reports the input in volts.
func (r *Reader) ReadVoltage() (float64, error) {
	r.board.mu.Lock()
	defer r.board.mu.Unlock()
	if r.closed || r.board.closed {
		return 0, fmt.Errorf("daq: channel %d is closed", r.channel)
	}

	sample, err := r.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("daq: channel %d read: %w", r.channel, err)
	}
	return float64(sample.V) / float64(physic.Volt), nil
}

// ReadRaw reports the channel voltage. The angle unwrap pipeline takes the
// raw sensor value in volts.
func (r *Reader) ReadRaw() (float64, error) {
	return r.ReadVoltage()
}

// Close halts the channel. The board's bus closes with the last reader.
func (r *Reader) Close() error {
	r.board.mu.Lock()
	defer r.board.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.pin.Halt(); err != nil {
		log.Printf("daq: halting channel %d: %v", r.channel, err)
	}
	r.board.readers--
	if r.board.readers == 0 {
		return r.board.closeBusLocked()
	}
	return nil
}
