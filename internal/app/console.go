package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/torsion_stand/internal/config"
	"github.com/relabs-tech/torsion_stand/internal/measure"
)

// RunConsole follows a measurement over MQTT and prints every event. Useful
// over SSH when the stand runs headless and the web panel is not up.
func RunConsole() error {
	cfg := config.Get()
	broker := cfg.MQTTBroker
	if broker == "" {
		broker = "tcp://localhost:1883"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.MQTTClientID + "-console")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", broker)

	// Subscribe to samples
	sampleToken := client.Subscribe(cfg.TopicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s measure.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[DATA]  t=%8.1fs  U=%8.4fV  M=%8.3fNm  angle=%9.3f°  turns=%d\n",
			s.ElapsedS, s.TorqueVolts, s.TorqueNm, s.AngleDeg, s.Turns,
		)
	})
	sampleToken.Wait()
	if sampleToken.Error() != nil {
		return sampleToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicSample)

	// Subscribe to phase changes
	phaseToken := client.Subscribe(cfg.TopicPhase, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p struct {
			Phase  string `json:"phase"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: phase unmarshal error: %v", err)
			return
		}

		if p.Reason != "" {
			fmt.Printf("[PHASE] %s (%s)\n", p.Phase, p.Reason)
			return
		}
		fmt.Printf("[PHASE] %s\n", p.Phase)
	})
	phaseToken.Wait()
	if phaseToken.Error() != nil {
		return phaseToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPhase)

	// Subscribe to hardware status
	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s struct {
			Capability string `json:"capability"`
			Status     string `json:"status"`
		}
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}

		fmt.Printf("[STAT]  %s: %s\n", s.Capability, s.Status)
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
