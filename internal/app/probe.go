// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/torsion_stand/internal/config"
	"github.com/relabs-tech/torsion_stand/internal/daq"
	"github.com/relabs-tech/torsion_stand/internal/units"
)

// RunProbe reads both analog channels a few times and prints the voltages
// next to the converted values. It exists to check the bench wiring without
// starting a session: a torque channel sitting at the supply rail or an
// angle channel stuck at zero shows up immediately.
func RunProbe(count int, interval time.Duration) error {
	cfg := config.Get()

	board, err := daq.Open(daq.Options{
		Bus:       cfg.DAQI2CBus,
		Addr:      cfg.DAQI2CAddr,
		FullScale: cfg.DAQFullScaleV,
		Rate:      cfg.DAQRateHz,
	})
	if err != nil {
		return err
	}
	defer board.Close()

	torque, err := board.Reader(cfg.DAQTorqueChannel)
	if err != nil {
		return err
	}
	angleIn, err := board.Reader(cfg.DAQAngleChannel)
	if err != nil {
		return err
	}

	span := units.AngleSpan{
		MinVolts: cfg.AngleVMin,
		MaxVolts: cfg.AngleVMax,
		MinDeg:   cfg.AngleDegMin,
		MaxDeg:   cfg.AngleDegMax,
	}

	fmt.Printf("probing channels %d (torque) and %d (angle), %d reads\n",
		cfg.DAQTorqueChannel, cfg.DAQAngleChannel, count)

	var torqueSum float64
	var torqueReads int
	for i := 0; i < count; i++ {
		torqueV, err := torque.ReadVoltage()
		if err != nil {
			log.Printf("probe: torque read %d: %v", i, err)
			continue
		}
		angleV, err := angleIn.ReadRaw()
		if err != nil {
			log.Printf("probe: angle read %d: %v", i, err)
			continue
		}
		torqueSum += torqueV
		torqueReads++

		fmt.Printf(
			"[%3d]  torque %8.4f V (%8.3f Nm untared)   angle %8.4f V (%8.2f°)\n",
			i, torqueV,
			units.TorqueFromVoltage(torqueV, cfg.TorqueScale),
			angleV,
			units.AngleFromVoltage(angleV, span),
		)
		time.Sleep(interval)
	}

	if torqueReads > 0 {
		offset := torqueSum / float64(torqueReads)
		fmt.Printf("\ntorque zero offset: %.4f V (%.3f Nm); calibration subtracts this at session start\n",
			offset, units.TorqueFromVoltage(offset, cfg.TorqueScale))
	}

	if err := torque.Close(); err != nil {
		log.Printf("probe: closing torque channel: %v", err)
	}
	if err := angleIn.Close(); err != nil {
		log.Printf("probe: closing angle channel: %v", err)
	}
	return nil
}
