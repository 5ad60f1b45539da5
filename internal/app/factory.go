package app

import (
	"fmt"
	"sync"

	"github.com/relabs-tech/torsion_stand/internal/config"
	"github.com/relabs-tech/torsion_stand/internal/daq"
	"github.com/relabs-tech/torsion_stand/internal/demo"
	"github.com/relabs-tech/torsion_stand/internal/hw"
	"github.com/relabs-tech/torsion_stand/internal/nanotec"
	"github.com/relabs-tech/torsion_stand/internal/trinamic"
	"github.com/relabs-tech/torsion_stand/internal/units"
)

// NewFactory builds the hardware factory named by HARDWARE in the
// configuration. "demo" returns the simulator, "real" returns adapters for
// the ADS1115 and the configured motor drive.
func NewFactory(cfg *config.Config) (hw.Factory, error) {
	switch cfg.Hardware {
	case "demo":
		return newSim(cfg), nil
	case "real":
		return &realFactory{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("app: unknown hardware %q", cfg.Hardware)
	}
}

// newSim builds the simulator with the bench's conversion parameters so
// demo runs and real runs share the same voltage-to-unit path.
func newSim(cfg *config.Config) *demo.Sim {
	sim := demo.DefaultConfig()
	sim.Span = units.AngleSpan{
		MinVolts: cfg.AngleVMin,
		MaxVolts: cfg.AngleVMax,
		MinDeg:   cfg.AngleDegMin,
		MaxDeg:   cfg.AngleDegMax,
	}
	sim.TorqueScale = cfg.TorqueScale
	return demo.NewSim(sim)
}

// realFactory hands out adapters for the bench hardware. Both analog
// channels come from one ADS1115, so the board is shared and reopened when
// a previous activation has shut it down.
type realFactory struct {
	cfg *config.Config

	mu    sync.Mutex
	board *daq.Board
}

func (f *realFactory) openBoard() (*daq.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.board != nil && !f.board.Closed() {
		return f.board, nil
	}

	board, err := daq.Open(daq.Options{
		Bus:       f.cfg.DAQI2CBus,
		Addr:      f.cfg.DAQI2CAddr,
		FullScale: f.cfg.DAQFullScaleV,
		Rate:      f.cfg.DAQRateHz,
	})
	if err != nil {
		return nil, err
	}
	f.board = board
	return board, nil
}

func (f *realFactory) TorqueSource() (hw.TorqueSource, error) {
	board, err := f.openBoard()
	if err != nil {
		return nil, err
	}
	return board.Reader(f.cfg.DAQTorqueChannel)
}

func (f *realFactory) AngleSource() (hw.AngleSource, error) {
	board, err := f.openBoard()
	if err != nil {
		return nil, err
	}
	return board.Reader(f.cfg.DAQAngleChannel)
}

func (f *realFactory) Motor() (hw.Motor, error) {
	switch f.cfg.MotorDriver {
	case "nanotec":
		return nanotec.Connect(nanotec.Options{
			Addr:              f.cfg.NanotecAddr,
			UnitID:            f.cfg.NanotecUnitID,
			EncoderResolution: f.cfg.EncoderResolution,
		})
	case "trinamic":
		return trinamic.Connect(trinamic.Options{
			Port:        f.cfg.TrinamicPort,
			Baud:        f.cfg.TrinamicBaud,
			StepsPerDeg: f.cfg.TrinamicStepsPerDeg,
		})
	default:
		return nil, fmt.Errorf("app: unknown motor driver %q", f.cfg.MotorDriver)
	}
}
