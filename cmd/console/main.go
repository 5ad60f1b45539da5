package main

import (
	"log"

	"github.com/relabs-tech/torsion_stand/internal/app"
	"github.com/relabs-tech/torsion_stand/internal/config"
)

func main() {
	log.Println("starting torsion stand console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("stand_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsole(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
