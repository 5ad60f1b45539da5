// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package nanotec

// RegisterMap fixes where the drive's CiA 402 objects sit in the Modbus
// holding register space. The defaults match the drive's standard mapping;
// a remapped PLC image can override them.
type RegisterMap struct {
	Controlword     uint16
	Statusword      uint16
	ModeOfOperation uint16
	TargetVelocity  uint16 // int32, two registers, low word first
	ActualPosition  uint16 // int32, two registers, low word first
}

// DefaultRegisters returns the drive's standard object mapping.
func DefaultRegisters() RegisterMap {
	return RegisterMap{
		Controlword:     0x6040,
		Statusword:      0x6041,
		ModeOfOperation: 0x6060,
		TargetVelocity:  0x60FF,
		ActualPosition:  0x6064,
	}
}

// Controlword commands (CiA 402 power state machine).
const (
	cwShutdown  = 0x0006 // -> Ready to switch on
	cwSwitchOn  = 0x0007 // -> Switched on
	cwEnable    = 0x000F // -> Operation enabled
	cwStartHome = 0x001F // operation enabled + homing start bit
	cwQuickStop = 0x0002
	cwDisable   = 0x0000
)

// Statusword bits.
const (
	swFault          = 1 << 3
	swTargetReached  = 1 << 10
	swHomingAttained = 1 << 12
	swHomingError    = 1 << 13
)

// Modes of operation.
const (
	modeProfileVelocity = 3
	modeHoming          = 6
)
