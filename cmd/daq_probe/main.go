// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"time"

	"github.com/relabs-tech/torsion_stand/internal/app"
	"github.com/relabs-tech/torsion_stand/internal/config"
)

func main() {
	configPath := flag.String("config", "./stand_config.txt", "path to configuration file")
	reads := flag.Int("reads", 20, "number of reads per channel")
	interval := flag.Duration("interval", 200*time.Millisecond, "delay between reads")
	flag.Parse()

	log.Println("starting ADS1115 probe (standalone)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunProbe(*reads, *interval); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
