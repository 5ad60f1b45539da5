// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package trinamic

import (
	"encoding/binary"
	"fmt"
)

// TMCL exchanges fixed 9-byte frames: address, command, type, motor, a
// 32-bit big-endian value and a checksum over the first eight bytes.
const frameLen = 9

// Command numbers used by this driver.
const (
	cmdROR = 1  // rotate right
	cmdROL = 2  // rotate left
	cmdMST = 3  // motor stop
	cmdGAP = 6  // get axis parameter
	cmdRFS = 13 // reference search
)

// RFS subcommands (the type byte).
const (
	rfsStart  = 0
	rfsStop   = 1
	rfsStatus = 2
)

// Axis parameters.
const (
	paramActualPosition = 1
)

const statusOK = 100

type request struct {
	Address byte
	Command byte
	Type    byte
	Motor   byte
	Value   int32
}

func (r request) encode() []byte {
	b := make([]byte, frameLen)
	b[0] = r.Address
	b[1] = r.Command
	b[2] = r.Type
	b[3] = r.Motor
	binary.BigEndian.PutUint32(b[4:8], uint32(r.Value))
	b[8] = checksum(b[:8])
	return b
}

type reply struct {
	Reply   byte
	Module  byte
	Status  byte
	Command byte
	Value   int32
}

func decodeReply(b []byte) (reply, error) {
	if len(b) != frameLen {
		return reply{}, fmt.Errorf("reply is %d bytes, want %d", len(b), frameLen)
	}
	if got, want := b[8], checksum(b[:8]); got != want {
		return reply{}, fmt.Errorf("reply checksum %#02x, want %#02x", got, want)
	}
	return reply{
		Reply:   b[0],
		Module:  b[1],
		Status:  b[2],
		Command: b[3],
		Value:   int32(binary.BigEndian.Uint32(b[4:8])),
	}, nil
}

// checksum is the low byte of the sum of the frame's first eight bytes.
func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

func statusText(code byte) string {
	switch code {
	case 1:
		return "wrong checksum"
	case 2:
		return "invalid command"
	case 3:
		return "wrong type"
	case 4:
		return "invalid value"
	case 5:
		return "EEPROM locked"
	case 6:
		return "command not available"
	default:
		return fmt.Sprintf("status %d", code)
	}
}
