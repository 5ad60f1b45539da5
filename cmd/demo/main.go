// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/torsion_stand/internal/app"
	"github.com/relabs-tech/torsion_stand/internal/config"
)

func main() {
	configPath := flag.String("config", "./stand_config.txt", "path to configuration file")
	sample := flag.String("sample", "demo", "sample name for the record")
	velocity := flag.Float64("velocity", 45, "drive velocity in deg/s, negative reverses")
	maxAngle := flag.Float64("max-angle", 720, "stop at this angle in deg")
	maxTorque := flag.Float64("max-torque", 15, "stop at this torque in Nm")
	duration := flag.Duration("duration", 0, "stop after this long (0 waits for a stop condition)")
	flag.Parse()

	log.Println("starting torsion stand demo (simulated hardware)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDemo(app.DemoOptions{
		SampleName: *sample,
		Duration:   *duration,
		Velocity:   *velocity,
		MaxAngle:   *maxAngle,
		MaxTorque:  *maxTorque,
	}); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
