package app

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/torsion_stand/internal/config"
	"github.com/relabs-tech/torsion_stand/internal/hw"
	"github.com/relabs-tech/torsion_stand/internal/measure"
	"github.com/relabs-tech/torsion_stand/internal/session"
)

// Publisher mirrors session events onto MQTT so the console and the display
// can follow a run without talking to the panel. All topics are retained:
// a subscriber connecting mid-run immediately sees the current phase and
// the latest sample.
type Publisher struct {
	client mqtt.Client
	cfg    *config.Config
}

// NewPublisher connects to the configured broker.
func NewPublisher(cfg *config.Config) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("app: MQTT connect to %s: %w", cfg.MQTTBroker, token.Error())
	}
	log.Printf("app: publishing to MQTT broker %s", cfg.MQTTBroker)
	return &Publisher{client: client, cfg: cfg}, nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// publish marshals and sends without waiting on the token. Listener
// callbacks run on the session tick and must not stall it on a slow broker.
func (p *Publisher) publish(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("app: marshal error (%s): %v", topic, err)
		return
	}
	p.client.Publish(topic, 0, true, payload)
}

// PhaseChanged implements session.Listener.
func (p *Publisher) PhaseChanged(phase session.Phase) {
	p.publish(p.cfg.TopicPhase, struct {
		Phase string `json:"phase"`
	}{phase.String()})
}

// HardwareChanged implements session.Listener.
func (p *Publisher) HardwareChanged(cap hw.Capability, status hw.Status) {
	p.publish(p.cfg.TopicStatus, struct {
		Capability string `json:"capability"`
		Status     string `json:"status"`
	}{string(cap), status.String()})
}

// SampleRecorded implements session.Listener.
func (p *Publisher) SampleRecorded(s measure.Sample) {
	p.publish(p.cfg.TopicSample, s)
}

// SessionEnded implements session.Listener.
func (p *Publisher) SessionEnded(reason measure.StopReason) {
	p.publish(p.cfg.TopicPhase, struct {
		Phase  string `json:"phase"`
		Reason string `json:"reason"`
	}{session.PhaseStopped.String(), reason.String()})
}
