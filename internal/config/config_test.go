package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stand_config.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
# Torsion stand bench setup
PROJECT_DIR=/data/measurements
PANEL_PORT=9000
STATIC_DIR=web/static

MQTT_BROKER=tcp://localhost:1883
MQTT_CLIENT_ID=stand_bench_2
TOPIC_SAMPLE=bench2/sample

HARDWARE=real
MOTOR_DRIVER=nanotec
NANOTEC_ADDR=192.168.2.21:502
NANOTEC_UNIT_ID=2
ENCODER_RESOLUTION=4096

DAQ_I2C_ADDR=0x49
DAQ_TORQUE_CHANNEL=2
DAQ_ANGLE_CHANNEL=3
DAQ_FULL_SCALE_V=4.096
DAQ_RATE_HZ=250

TORQUE_SCALE=1.25
ANGLE_V_MIN=0.5
ANGLE_V_MAX=9.5
ANGLE_DEG_MIN=-180
ANGLE_DEG_MAX=180
DEFAULT_INTERVAL_MS=50
UNWRAP_DEADBAND=2.5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ProjectDir != "/data/measurements" {
		t.Errorf("ProjectDir = %q", cfg.ProjectDir)
	}
	if cfg.PanelPort != 9000 {
		t.Errorf("PanelPort = %d, want 9000", cfg.PanelPort)
	}
	if cfg.MQTTBroker != "tcp://localhost:1883" || cfg.MQTTClientID != "stand_bench_2" {
		t.Errorf("MQTT = %q/%q", cfg.MQTTBroker, cfg.MQTTClientID)
	}
	if cfg.Hardware != "real" || cfg.MotorDriver != "nanotec" {
		t.Errorf("hardware selection = %q/%q", cfg.Hardware, cfg.MotorDriver)
	}
	if cfg.NanotecAddr != "192.168.2.21:502" || cfg.NanotecUnitID != 2 || cfg.EncoderResolution != 4096 {
		t.Errorf("nanotec = %q/%d/%d", cfg.NanotecAddr, cfg.NanotecUnitID, cfg.EncoderResolution)
	}
	if cfg.DAQI2CAddr != 0x49 || cfg.DAQTorqueChannel != 2 || cfg.DAQAngleChannel != 3 {
		t.Errorf("daq = %#x/%d/%d", cfg.DAQI2CAddr, cfg.DAQTorqueChannel, cfg.DAQAngleChannel)
	}
	if cfg.DAQFullScaleV != 4.096 || cfg.DAQRateHz != 250 {
		t.Errorf("daq range = %g/%d", cfg.DAQFullScaleV, cfg.DAQRateHz)
	}
	if cfg.TorqueScale != 1.25 || cfg.UnwrapDeadband != 2.5 || cfg.DefaultIntervalMS != 50 {
		t.Errorf("session defaults = %g/%g/%d", cfg.TorqueScale, cfg.UnwrapDeadband, cfg.DefaultIntervalMS)
	}
	if cfg.AngleVMin != 0.5 || cfg.AngleVMax != 9.5 || cfg.AngleDegMin != -180 || cfg.AngleDegMax != 180 {
		t.Errorf("angle span = %g..%g V, %g..%g deg", cfg.AngleVMin, cfg.AngleVMax, cfg.AngleDegMin, cfg.AngleDegMax)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "PROJECT_DIR=/tmp/stand\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Defaults()
	if cfg.Hardware != "demo" {
		t.Errorf("Hardware = %q, want demo default", cfg.Hardware)
	}
	if cfg.PanelPort != want.PanelPort || cfg.DAQI2CAddr != want.DAQI2CAddr {
		t.Errorf("defaults not applied: port %d, addr %#x", cfg.PanelPort, cfg.DAQI2CAddr)
	}
	if cfg.TorqueScale != want.TorqueScale || cfg.AngleVMax != want.AngleVMax {
		t.Errorf("session defaults not applied: %g, %g", cfg.TorqueScale, cfg.AngleVMax)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"unknown key", "TORQUE_GAIN=2"},
		{"missing equals", "JUST_A_WORD"},
		{"bad int", "PANEL_PORT=eighty"},
		{"port out of range", "PANEL_PORT=70000"},
		{"channel out of range", "DAQ_TORQUE_CHANNEL=4"},
		{"bad hardware", "HARDWARE=simulator"},
		{"bad motor driver", "MOTOR_DRIVER=stepper"},
		{"bad full scale", "DAQ_FULL_SCALE_V=5.0"},
		{"bad rate", "DAQ_RATE_HZ=100"},
		{"unit id out of range", "NANOTEC_UNIT_ID=300"},
		{"negative torque scale", "TORQUE_SCALE=-1"},
		{"deadband too wide", "UNWRAP_DEADBAND=180"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "PROJECT_DIR=/tmp/stand\n"+tt.line+"\n")
			if _, err := Load(path); err == nil {
				t.Errorf("Load accepted %q", tt.line)
			}
		})
	}
}

func TestValidateRequiredKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"missing project dir",
			"PANEL_PORT=8080\n",
			"PROJECT_DIR",
		},
		{
			"real hardware needs motor driver",
			"PROJECT_DIR=/tmp/stand\nHARDWARE=real\n",
			"MOTOR_DRIVER",
		},
		{
			"nanotec needs address",
			"PROJECT_DIR=/tmp/stand\nHARDWARE=real\nMOTOR_DRIVER=nanotec\n",
			"NANOTEC_ADDR",
		},
		{
			"trinamic needs port",
			"PROJECT_DIR=/tmp/stand\nHARDWARE=real\nMOTOR_DRIVER=trinamic\n",
			"TRINAMIC_PORT",
		},
		{
			"daq channels must differ",
			"PROJECT_DIR=/tmp/stand\nHARDWARE=real\nMOTOR_DRIVER=trinamic\nTRINAMIC_PORT=/dev/ttyACM0\nDAQ_ANGLE_CHANNEL=0\n",
			"DAQ_TORQUE_CHANNEL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load accepted incomplete config")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsTrinamicSetup(t *testing.T) {
	path := writeConfig(t, `PROJECT_DIR=/tmp/stand
HARDWARE=real
MOTOR_DRIVER=trinamic
TRINAMIC_PORT=/dev/ttyACM0
TRINAMIC_BAUD=9600
TRINAMIC_STEPS_PER_DEG=426.67
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TrinamicPort != "/dev/ttyACM0" || cfg.TrinamicBaud != 9600 {
		t.Errorf("trinamic = %q/%d", cfg.TrinamicPort, cfg.TrinamicBaud)
	}
}
