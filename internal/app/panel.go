// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/torsion_stand/internal/angle"
	"github.com/relabs-tech/torsion_stand/internal/config"
	"github.com/relabs-tech/torsion_stand/internal/hw"
	"github.com/relabs-tech/torsion_stand/internal/measure"
	"github.com/relabs-tech/torsion_stand/internal/session"
	"github.com/relabs-tech/torsion_stand/internal/units"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Command is one operator request on the panel socket.
type Command struct {
	Action string        `json:"action"` // activate, deactivate, calibrate, start, stop, state
	Start  *StartRequest `json:"start,omitempty"`
}

// StartRequest carries the run parameters for a start action. The limits
// are required; the remaining fields fall back to the configured bench
// defaults when missing.
type StartRequest struct {
	SampleName  string  `json:"sample_name"`
	MaxAngle    float64 `json:"max_angle"`    // deg
	MaxTorque   float64 `json:"max_torque"`   // Nm
	MaxVelocity float64 `json:"max_velocity"` // deg/s, signed
	IntervalMS  int     `json:"interval_ms,omitempty"`
	EncoderMode string  `json:"encoder_mode,omitempty"` // single_turn, multi_turn
	AngleSource string  `json:"angle_source,omitempty"` // external_analog, motor_reported
	TorqueScale float64 `json:"torque_scale,omitempty"` // Nm per volt
	AngleVMin   float64 `json:"angle_v_min,omitempty"`
	AngleVMax   float64 `json:"angle_v_max,omitempty"`
	AngleDegMin float64 `json:"angle_deg_min,omitempty"`
	AngleDegMax float64 `json:"angle_deg_max,omitempty"`
}

// Event is one server message on the panel socket.
type Event struct {
	Type       string            `json:"type"` // phase, status, sample, ended, state, ack, error
	Phase      string            `json:"phase,omitempty"`
	Capability string            `json:"capability,omitempty"`
	Status     string            `json:"status,omitempty"`
	Sample     *measure.Sample   `json:"sample,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	State      *session.Snapshot `json:"state,omitempty"`
	Action     string            `json:"action,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// client is one connected panel socket. gorilla connections do not allow
// concurrent writers, so every write takes the mutex: the read loop answers
// commands while controller callbacks broadcast from the session goroutine.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(e); err != nil {
		log.Printf("panel: websocket write error: %v", err)
	}
}

// Panel is the operator's web frontend for one controller: a command socket
// plus a state API. Every connected socket sees the same event stream.
type Panel struct {
	cfg  *config.Config
	ctrl *session.Controller

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewPanel builds the panel around an existing controller. The caller wires
// it into the controller's listener chain.
func NewPanel(cfg *config.Config, ctrl *session.Controller) *Panel {
	return &Panel{
		cfg:     cfg,
		ctrl:    ctrl,
		clients: make(map[*client]struct{}),
	}
}

// Handler serves the command socket, the state API and the static UI files.
func (p *Panel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", p.handleWS)
	mux.HandleFunc("/api/state", p.handleState)
	mux.Handle("/", http.FileServer(http.Dir(p.cfg.StaticDir)))
	return mux
}

func (p *Panel) handleState(w http.ResponseWriter, r *http.Request) {
	state := p.ctrl.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Printf("panel: json encode error: %v", err)
	}
}

func (p *Panel) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("panel: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	cl := &client{conn: conn}
	p.mu.Lock()
	p.clients[cl] = struct{}{}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.clients, cl)
		p.mu.Unlock()
	}()

	// A fresh client starts from the current state.
	state := p.ctrl.Snapshot()
	cl.send(Event{Type: "state", State: &state})

	for {
		var msg Command
		if err := conn.ReadJSON(&msg); err != nil {
			log.Printf("panel: websocket read error: %v", err)
			break
		}
		p.dispatch(cl, msg)
	}
}

func (p *Panel) dispatch(cl *client, msg Command) {
	var err error
	switch msg.Action {
	case "activate":
		err = p.ctrl.Activate()
	case "deactivate":
		err = p.ctrl.Deactivate()
	case "calibrate":
		err = p.ctrl.Calibrate()
	case "start":
		err = p.start(msg.Start)
	case "stop":
		err = p.ctrl.Stop()
	case "state":
		state := p.ctrl.Snapshot()
		cl.send(Event{Type: "state", State: &state})
		return
	default:
		cl.send(Event{Type: "error", Message: fmt.Sprintf("unknown action %q", msg.Action)})
		return
	}

	if err != nil {
		log.Printf("panel: %s: %v", msg.Action, err)
		cl.send(Event{Type: "error", Action: msg.Action, Message: err.Error()})
		return
	}
	cl.send(Event{Type: "ack", Action: msg.Action})
}

func (p *Panel) start(req *StartRequest) error {
	if req == nil {
		return fmt.Errorf("start needs parameters")
	}
	cfg, err := req.sessionConfig(p.cfg)
	if err != nil {
		return err
	}
	return p.ctrl.Start(cfg)
}

// sessionConfig merges the request with the configured defaults. The
// conversion parameters are bench constants most of the time; a request can
// still override them for a single run.
func (r *StartRequest) sessionConfig(cfg *config.Config) (session.Config, error) {
	out := session.Config{
		SampleName:  r.SampleName,
		MaxAngle:    r.MaxAngle,
		MaxTorque:   r.MaxTorque,
		MaxVelocity: r.MaxVelocity,
		Interval:    time.Duration(cfg.DefaultIntervalMS) * time.Millisecond,
		EncoderMode: angle.SingleTurn,
		AngleSource: measure.AngleFromAnalog,
		TorqueScale: cfg.TorqueScale,
		AngleSpan: units.AngleSpan{
			MinVolts: cfg.AngleVMin,
			MaxVolts: cfg.AngleVMax,
			MinDeg:   cfg.AngleDegMin,
			MaxDeg:   cfg.AngleDegMax,
		},
	}

	if r.IntervalMS > 0 {
		out.Interval = time.Duration(r.IntervalMS) * time.Millisecond
	}
	if r.EncoderMode != "" {
		mode, err := angle.ParseMode(r.EncoderMode)
		if err != nil {
			return session.Config{}, err
		}
		out.EncoderMode = mode
	}
	if r.AngleSource != "" {
		src := measure.AngleSource(r.AngleSource)
		if !src.Valid() {
			return session.Config{}, fmt.Errorf("unknown angle source %q", r.AngleSource)
		}
		out.AngleSource = src
	}
	if r.TorqueScale != 0 {
		out.TorqueScale = r.TorqueScale
	}
	if r.AngleVMax != r.AngleVMin {
		out.AngleSpan = units.AngleSpan{
			MinVolts: r.AngleVMin,
			MaxVolts: r.AngleVMax,
			MinDeg:   r.AngleDegMin,
			MaxDeg:   r.AngleDegMax,
		}
	}
	return out, nil
}

func (p *Panel) broadcast(e Event) {
	p.mu.Lock()
	targets := make([]*client, 0, len(p.clients))
	for cl := range p.clients {
		targets = append(targets, cl)
	}
	p.mu.Unlock()

	for _, cl := range targets {
		cl.send(e)
	}
}

// PhaseChanged implements session.Listener.
func (p *Panel) PhaseChanged(phase session.Phase) {
	p.broadcast(Event{Type: "phase", Phase: phase.String()})
}

// HardwareChanged implements session.Listener.
func (p *Panel) HardwareChanged(cap hw.Capability, status hw.Status) {
	p.broadcast(Event{Type: "status", Capability: string(cap), Status: status.String()})
}

// SampleRecorded implements session.Listener.
func (p *Panel) SampleRecorded(s measure.Sample) {
	p.broadcast(Event{Type: "sample", Sample: &s})
}

// SessionEnded implements session.Listener.
func (p *Panel) SessionEnded(reason measure.StopReason) {
	p.broadcast(Event{Type: "ended", Reason: reason.String()})
}

// fanout relays controller notifications to every attached listener.
type fanout []session.Listener

func (f fanout) PhaseChanged(p session.Phase) {
	for _, l := range f {
		l.PhaseChanged(p)
	}
}

func (f fanout) HardwareChanged(c hw.Capability, s hw.Status) {
	for _, l := range f {
		l.HardwareChanged(c, s)
	}
}

func (f fanout) SampleRecorded(s measure.Sample) {
	for _, l := range f {
		l.SampleRecorded(s)
	}
}

func (f fanout) SessionEnded(r measure.StopReason) {
	for _, l := range f {
		l.SessionEnded(r)
	}
}

// RunPanel wires the controller to the web panel and blocks until the
// process is told to stop. Shutdown goes through Deactivate so a spinning
// motor is stopped before the process exits.
func RunPanel() error {
	cfg := config.Get()

	// 1) Hardware factory and the session controller
	factory, err := NewFactory(cfg)
	if err != nil {
		return err
	}
	ctrl := session.New(factory, cfg.ProjectDir)
	ctrl.SetUnwrapDeadband(cfg.UnwrapDeadband)

	panel := NewPanel(cfg, ctrl)
	listeners := fanout{panel}

	// 2) Optional MQTT mirror for the console and the display
	if cfg.MQTTBroker != "" {
		pub, err := NewPublisher(cfg)
		if err != nil {
			return err
		}
		defer pub.Close()
		listeners = append(listeners, pub)
	}
	ctrl.SetListener(listeners)

	// 3) HTTP: command socket, state API, static UI
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.PanelPort),
		Handler: panel.Handler(),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("panel: listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	// 4) Block until a signal or a server failure, then stop the stand
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("panel: received %v, shutting down", sig)
	case err := <-errCh:
		return err
	}

	if err := ctrl.Deactivate(); err != nil {
		log.Printf("panel: deactivate on shutdown: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
