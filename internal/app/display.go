package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/torsion_stand/internal/config"
	"github.com/relabs-tech/torsion_stand/internal/measure"
)

// DisplayData holds the latest data for the display
type DisplayData struct {
	mu sync.RWMutex

	sample     measure.Sample
	haveSample bool

	phase     string
	reason    string
	havePhase bool
}

// RunDisplay drives the small OLED next to the stand: current phase on top,
// latest torque and angle below. It follows the run over MQTT, so it shows
// the same picture no matter which frontend drives the session.
func RunDisplay() error {
	cfg := config.Get()
	broker := cfg.MQTTBroker
	if broker == "" {
		broker = "tcp://localhost:1883"
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	opts := ssd1306.DefaultOpts
	opts.W = cfg.DisplayWidth
	opts.H = cfg.DisplayHeight
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: %dx%d display initialized", opts.W, opts.H)

	// Show splash screen
	if err := showSplash(dev, &opts); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	// Data storage
	data := &DisplayData{}

	// Connect to MQTT
	mqttOpts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.MQTTClientID + "-display")

	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", broker)

	// Subscribe to samples
	sampleToken := client.Subscribe(cfg.TopicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s measure.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: sample unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.sample = s
		data.haveSample = true
		data.mu.Unlock()
	})
	sampleToken.Wait()
	if sampleToken.Error() != nil {
		return sampleToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicSample)

	// Subscribe to phase changes
	phaseToken := client.Subscribe(cfg.TopicPhase, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p struct {
			Phase  string `json:"phase"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("display: phase unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.phase = p.Phase
		data.reason = p.Reason
		data.havePhase = true
		data.mu.Unlock()
	})
	phaseToken.Wait()
	if phaseToken.Error() != nil {
		return phaseToken.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicPhase)

	// Display update loop
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := DisplayData{
			sample:     data.sample,
			haveSample: data.haveSample,
			phase:      data.phase,
			reason:     data.reason,
			havePhase:  data.havePhase,
		}
		data.mu.RUnlock()

		if err := updateDisplay(dev, &opts, &snapshot); err != nil {
			log.Printf("display: update error: %v", err)
		}
	}
	return nil
}

func showSplash(dev *ssd1306.Dev, opts *ssd1306.Opts) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, opts.W, opts.H))

	// Blank image
	for i := range img.Pix {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Torsion Stand"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("session"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func updateDisplay(dev *ssd1306.Dev, opts *ssd1306.Opts, data *DisplayData) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, opts.W, opts.H))

	// Blank image
	for i := range img.Pix {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !data.havePhase {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Torsion Stand"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	// Phase line; the stop reason rides along once the session has ended
	drawer.Dot = fixed.P(0, 13)
	if data.reason != "" {
		drawer.DrawBytes([]byte(fmt.Sprintf("%s %s", data.phase, data.reason)))
	} else {
		drawer.DrawBytes([]byte(data.phase))
	}

	if data.haveSample {
		drawer.Dot = fixed.P(0, 30)
		drawer.DrawBytes([]byte(fmt.Sprintf("M: %8.3f Nm", data.sample.TorqueNm)))

		drawer.Dot = fixed.P(0, 43)
		drawer.DrawBytes([]byte(fmt.Sprintf("a: %8.2f deg", data.sample.AngleDeg)))

		drawer.Dot = fixed.P(0, 56)
		drawer.DrawBytes([]byte(fmt.Sprintf("t: %7.1f s", data.sample.ElapsedS)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
