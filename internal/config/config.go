package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Project
	ProjectDir string

	// Panel web server
	PanelPort int
	StaticDir string

	// MQTT. An empty broker address disables publishing.
	MQTTBroker   string
	MQTTClientID string
	TopicSample  string
	TopicPhase   string
	TopicStatus  string

	// Hardware selection: "demo" or "real"
	Hardware string
	// Motor driver when Hardware is "real": "nanotec" or "trinamic"
	MotorDriver string

	// DAQ (ADS1115 over I2C)
	DAQI2CBus        string // empty selects the first available bus
	DAQI2CAddr       uint16
	DAQTorqueChannel int
	DAQAngleChannel  int
	DAQFullScaleV    float64
	DAQRateHz        int

	// Nanotec drive (Modbus TCP)
	NanotecAddr       string
	NanotecUnitID     byte
	EncoderResolution int // counts per revolution

	// Trinamic drive (TMCL over serial)
	TrinamicPort        string
	TrinamicBaud        int
	TrinamicStepsPerDeg float64

	// Session form defaults
	TorqueScale       float64 // Nm per volt
	AngleVMin         float64
	AngleVMax         float64
	AngleDegMin       float64
	AngleDegMax       float64
	DefaultIntervalMS int
	UnwrapDeadband    float64 // deg added to the wrap threshold

	// Display. The SSD1306 driver owns the I2C address.
	DisplayI2CBus         string
	DisplayWidth          int
	DisplayHeight         int
	DisplayUpdateInterval int // milliseconds
}

// Defaults returns a Config preloaded with the values a bench setup can run
// on. Load overrides them with whatever the file sets.
func Defaults() Config {
	return Config{
		PanelPort:             8080,
		StaticDir:             "static",
		MQTTClientID:          "torsion_stand",
		TopicSample:           "stand/sample",
		TopicPhase:            "stand/phase",
		TopicStatus:           "stand/status",
		Hardware:              "demo",
		DAQI2CAddr:            0x48,
		DAQTorqueChannel:      0,
		DAQAngleChannel:       1,
		DAQFullScaleV:         6.144,
		DAQRateHz:             128,
		NanotecUnitID:         1,
		EncoderResolution:     8192,
		TrinamicBaud:          115200,
		TrinamicStepsPerDeg:   51200.0 / 360.0,
		TorqueScale:           2.0,
		AngleVMin:             0,
		AngleVMax:             10,
		AngleDegMin:           0,
		AngleDegMax:           360,
		DefaultIntervalMS:     100,
		DisplayWidth:          128,
		DisplayHeight:         64,
		DisplayUpdateInterval: 500,
	}
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//     Has package-level scope (visible to all functions in this package, persists for program lifetime).
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	defaults := Defaults()
	cfg := &defaults
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Project
	case "PROJECT_DIR":
		c.ProjectDir = value

	// Panel web server
	case "PANEL_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PANEL_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("PANEL_PORT must be 1-65535, got %d", port)
		}
		c.PanelPort = port
	case "STATIC_DIR":
		c.StaticDir = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "TOPIC_PHASE":
		c.TopicPhase = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Hardware selection
	case "HARDWARE":
		if value != "demo" && value != "real" {
			return fmt.Errorf("HARDWARE must be demo or real, got %q", value)
		}
		c.Hardware = value
	case "MOTOR_DRIVER":
		if value != "nanotec" && value != "trinamic" {
			return fmt.Errorf("MOTOR_DRIVER must be nanotec or trinamic, got %q", value)
		}
		c.MotorDriver = value

	// DAQ
	case "DAQ_I2C_BUS":
		c.DAQI2CBus = value
	case "DAQ_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DAQ_I2C_ADDR %q: %w", value, err)
		}
		c.DAQI2CAddr = uint16(addr)
	case "DAQ_TORQUE_CHANNEL":
		ch, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DAQ_TORQUE_CHANNEL %q: %w", value, err)
		}
		if ch < 0 || ch > 3 {
			return fmt.Errorf("DAQ_TORQUE_CHANNEL must be 0-3, got %d", ch)
		}
		c.DAQTorqueChannel = ch
	case "DAQ_ANGLE_CHANNEL":
		ch, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DAQ_ANGLE_CHANNEL %q: %w", value, err)
		}
		if ch < 0 || ch > 3 {
			return fmt.Errorf("DAQ_ANGLE_CHANNEL must be 0-3, got %d", ch)
		}
		c.DAQAngleChannel = ch
	case "DAQ_FULL_SCALE_V":
		fs, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid DAQ_FULL_SCALE_V %q: %w", value, err)
		}
		switch fs {
		case 6.144, 4.096, 2.048, 1.024, 0.512, 0.256:
		default:
			return fmt.Errorf("DAQ_FULL_SCALE_V must be one of 6.144|4.096|2.048|1.024|0.512|0.256, got %g", fs)
		}
		c.DAQFullScaleV = fs
	case "DAQ_RATE_HZ":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DAQ_RATE_HZ %q: %w", value, err)
		}
		switch rate {
		case 8, 16, 32, 64, 128, 250, 475, 860:
		default:
			return fmt.Errorf("DAQ_RATE_HZ must be one of 8|16|32|64|128|250|475|860, got %d", rate)
		}
		c.DAQRateHz = rate

	// Nanotec
	case "NANOTEC_ADDR":
		c.NanotecAddr = value
	case "NANOTEC_UNIT_ID":
		id, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NANOTEC_UNIT_ID %q: %w", value, err)
		}
		if id < 1 || id > 247 {
			return fmt.Errorf("NANOTEC_UNIT_ID must be 1-247, got %d", id)
		}
		c.NanotecUnitID = byte(id)
	case "ENCODER_RESOLUTION":
		res, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid ENCODER_RESOLUTION %q: %w", value, err)
		}
		if res <= 0 {
			return fmt.Errorf("ENCODER_RESOLUTION must be positive, got %d", res)
		}
		c.EncoderResolution = res

	// Trinamic
	case "TRINAMIC_PORT":
		c.TrinamicPort = value
	case "TRINAMIC_BAUD":
		baud, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TRINAMIC_BAUD %q: %w", value, err)
		}
		if baud <= 0 {
			return fmt.Errorf("TRINAMIC_BAUD must be positive, got %d", baud)
		}
		c.TrinamicBaud = baud
	case "TRINAMIC_STEPS_PER_DEG":
		steps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid TRINAMIC_STEPS_PER_DEG %q: %w", value, err)
		}
		if steps <= 0 {
			return fmt.Errorf("TRINAMIC_STEPS_PER_DEG must be positive, got %g", steps)
		}
		c.TrinamicStepsPerDeg = steps

	// Session form defaults
	case "TORQUE_SCALE":
		scale, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid TORQUE_SCALE %q: %w", value, err)
		}
		if scale <= 0 {
			return fmt.Errorf("TORQUE_SCALE must be positive, got %g", scale)
		}
		c.TorqueScale = scale
	case "ANGLE_V_MIN":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ANGLE_V_MIN %q: %w", value, err)
		}
		c.AngleVMin = v
	case "ANGLE_V_MAX":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ANGLE_V_MAX %q: %w", value, err)
		}
		c.AngleVMax = v
	case "ANGLE_DEG_MIN":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ANGLE_DEG_MIN %q: %w", value, err)
		}
		c.AngleDegMin = v
	case "ANGLE_DEG_MAX":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ANGLE_DEG_MAX %q: %w", value, err)
		}
		c.AngleDegMax = v
	case "DEFAULT_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DEFAULT_INTERVAL_MS %q: %w", value, err)
		}
		if interval < 1 {
			return fmt.Errorf("DEFAULT_INTERVAL_MS must be at least 1, got %d", interval)
		}
		c.DefaultIntervalMS = interval
	case "UNWRAP_DEADBAND":
		deadband, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid UNWRAP_DEADBAND %q: %w", value, err)
		}
		if deadband < 0 || deadband >= 180 {
			return fmt.Errorf("UNWRAP_DEADBAND must be 0-180 exclusive, got %g", deadband)
		}
		c.UnwrapDeadband = deadband

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_WIDTH":
		w, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_WIDTH %q: %w", value, err)
		}
		if w <= 0 {
			return fmt.Errorf("DISPLAY_WIDTH must be positive, got %d", w)
		}
		c.DisplayWidth = w
	case "DISPLAY_HEIGHT":
		h, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_HEIGHT %q: %w", value, err)
		}
		if h <= 0 {
			return fmt.Errorf("DISPLAY_HEIGHT must be positive, got %d", h)
		}
		c.DisplayHeight = h
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		if interval < 1 {
			return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be at least 1, got %d", interval)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.ProjectDir == "" {
		return fmt.Errorf("PROJECT_DIR is required")
	}
	if c.AngleVMax == c.AngleVMin {
		return fmt.Errorf("ANGLE_V_MAX must differ from ANGLE_V_MIN")
	}
	if c.AngleDegMax == c.AngleDegMin {
		return fmt.Errorf("ANGLE_DEG_MAX must differ from ANGLE_DEG_MIN")
	}
	if c.Hardware == "real" {
		if c.MotorDriver == "" {
			return fmt.Errorf("MOTOR_DRIVER is required when HARDWARE=real")
		}
		if c.MotorDriver == "nanotec" && c.NanotecAddr == "" {
			return fmt.Errorf("NANOTEC_ADDR is required when MOTOR_DRIVER=nanotec")
		}
		if c.MotorDriver == "trinamic" && c.TrinamicPort == "" {
			return fmt.Errorf("TRINAMIC_PORT is required when MOTOR_DRIVER=trinamic")
		}
		if c.DAQTorqueChannel == c.DAQAngleChannel {
			return fmt.Errorf("DAQ_TORQUE_CHANNEL and DAQ_ANGLE_CHANNEL must differ")
		}
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
