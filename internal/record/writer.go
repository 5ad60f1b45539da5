package record

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/torsion_stand/internal/measure"
)

// Header carries the session parameters echoed into the file header block.
type Header struct {
	StartedAt   time.Time
	SampleName  string
	MaxAngleDeg float64
	MaxTorqueNm float64
	MaxVelocity float64 // deg/s, signed
	TorqueScale float64 // Nm/V
	Interval    time.Duration
}

// Writer appends measurement rows to the session's DATA file. Rows are
// written unbuffered so data already on disk stays readable if the process
// dies mid-session.
type Writer struct {
	f    *os.File
	path string
}

// Create makes the measurement folder <projectDir>/<YYYYMMDD_HHMMSS>_<name>,
// creates <same_prefix>_DATA.txt inside it and writes the header block.
func Create(projectDir string, h Header) (*Writer, error) {
	prefix := h.StartedAt.Format("20060102_150405") + "_" + h.SampleName
	dir := filepath.Join(projectDir, prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating measurement folder: %w", err)
	}

	path := filepath.Join(dir, prefix+"_DATA.txt")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating measurement file: %w", err)
	}

	header := fmt.Sprintf("# Measurement started: %s - Sample: %s\n",
		h.StartedAt.Format("2006-01-02 15:04:05"), h.SampleName)
	header += fmt.Sprintf("# Max Angle: %g° | Max Torque: %g Nm | Max Velocity: %g°/s\n",
		h.MaxAngleDeg, h.MaxTorqueNm, h.MaxVelocity)
	header += fmt.Sprintf("# Torque Scale: %g Nm/V | Interval: %dms\n",
		h.TorqueScale, h.Interval.Milliseconds())
	header += "Time\tVoltage\tTorque\tAngle\n"
	header += "[HH:mm:ss.f]\t[V]\t[Nm]\t[°]\n"

	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}

	return &Writer{f: f, path: path}, nil
}

// Append writes one sample row: elapsed time, raw torque voltage, torque and
// continuous angle, tab-separated.
func (w *Writer) Append(s measure.Sample) error {
	row := fmt.Sprintf("%s\t%.6f\t%.6f\t%.6f\n",
		FormatElapsed(s.Elapsed), s.TorqueVolts, s.TorqueNm, s.AngleDeg)
	if _, err := w.f.WriteString(row); err != nil {
		return fmt.Errorf("writing sample row: %w", err)
	}
	return nil
}

// Close closes the DATA file. Safe to call once per writer.
func (w *Writer) Close() error {
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("closing measurement file: %w", err)
	}
	return nil
}

// Path reports where the DATA file lives.
func (w *Writer) Path() string {
	return w.path
}

// FormatElapsed renders a duration as HH:mm:ss.f with a single tenths digit,
// truncating toward zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := int64(d / (100 * time.Millisecond))
	secs := tenths / 10
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d.%d", h, m, s, tenths%10)
}
