package livemon

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// PanelKind identifies how panel reads its buffers.
type PanelKind string

// Supported panel kinds.
const (
	// SeriesPanel draws one line per buffer.
	SeriesPanel PanelKind = "series"
	// ScatterPanel draws x/y pairs, two buffers per series.
	ScatterPanel PanelKind = "scatter"
	// ConsolePanel prints lines and drains its buffer every tick.
	ConsolePanel PanelKind = "console"
	// FramePanel shows the latest frame and its metadata.
	FramePanel PanelKind = "frame"
)

// Defaults applied to omitted panel values.
const (
	DefaultPeriodMS        = 100
	DefaultHistory         = 10000
	DefaultConsoleCapacity = 100
)

// Capacity is configured as positive integer or "unbounded". Zero value
// means not set.
type Capacity int

const unboundedCapacity Capacity = -1

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Capacity) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int
	if err := unmarshal(&n); err == nil {
		if n <= 0 {
			return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, n)
		}
		*c = Capacity(n)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if strings.ToLower(s) != "unbounded" {
		return fmt.Errorf("%w: capacity %q", ErrInvalidConfig, s)
	}
	*c = unboundedCapacity
	return nil
}

// Value returns buffer capacity, def is used if capacity isn't set.
func (c Capacity) Value(def int) int {
	switch {
	case c == 0:
		return def
	case c == unboundedCapacity:
		return Unbounded
	}
	return int(c)
}

// BufferConfig describes retention of panel buffers.
type BufferConfig struct {
	Capacity Capacity `yaml:"capacity"`
	Mode     string   `yaml:"mode"`
}

// Range is an axis range.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// DisplayOptions are passed to renderer as is. Zero values mean renderer
// defaults.
type DisplayOptions struct {
	Title   string   `yaml:"title"`
	XLabel  string   `yaml:"x_label"`
	XUnit   string   `yaml:"x_unit"`
	YLabel  string   `yaml:"y_label"`
	YUnit   string   `yaml:"y_unit"`
	XRange  *Range   `yaml:"x_range"`
	YRange  *Range   `yaml:"y_range"`
	Legends []string `yaml:"legends"`
	Fill    bool     `yaml:"fill"`
}

// Validate checks ranges and number of legends against number of series.
func (d DisplayOptions) Validate(series int) error {
	if d.XRange != nil && d.XRange.Min >= d.XRange.Max {
		return fmt.Errorf("%w: x range [%v, %v]", ErrInvalidConfig, d.XRange.Min, d.XRange.Max)
	}
	if d.YRange != nil && d.YRange.Min >= d.YRange.Max {
		return fmt.Errorf("%w: y range [%v, %v]", ErrInvalidConfig, d.YRange.Min, d.YRange.Max)
	}
	if len(d.Legends) > 0 && len(d.Legends) != series {
		return fmt.Errorf("%w: %d legends for %d series", ErrInvalidConfig, len(d.Legends), series)
	}
	return nil
}

// PanelConfig describes a single panel: its buffers and poll period.
type PanelConfig struct {
	Name     string         `yaml:"name"`
	Kind     PanelKind      `yaml:"kind"`
	Series   int            `yaml:"series"`
	Buffer   BufferConfig   `yaml:"buffer"`
	PeriodMS int            `yaml:"period_ms"`
	Display  DisplayOptions `yaml:"display"`
}

// Mode returns buffer mode. Frame panels are always LatestOnly, console
// panels are always Accumulate.
func (p PanelConfig) Mode() (Mode, error) {
	switch p.Kind {
	case FramePanel:
		if m, err := ParseMode(p.Buffer.Mode); err != nil || (p.Buffer.Mode != "" && m != LatestOnly) {
			return 0, fmt.Errorf("%w: frame panel %q must use latest mode", ErrInvalidConfig, p.Name)
		}
		return LatestOnly, nil
	case ConsolePanel:
		if m, err := ParseMode(p.Buffer.Mode); err != nil || m != Accumulate {
			return 0, fmt.Errorf("%w: console panel %q must use accumulate mode", ErrInvalidConfig, p.Name)
		}
		return Accumulate, nil
	}
	return ParseMode(p.Buffer.Mode)
}

// Capacity returns buffer capacity with kind default applied.
func (p PanelConfig) Capacity() int {
	switch p.Kind {
	case ConsolePanel:
		return p.Buffer.Capacity.Value(DefaultConsoleCapacity)
	case FramePanel:
		return p.Buffer.Capacity.Value(Unbounded)
	}
	return p.Buffer.Capacity.Value(DefaultHistory)
}

// Period returns poll period with default applied.
func (p PanelConfig) Period() time.Duration {
	if p.PeriodMS == 0 {
		return PeriodMS(DefaultPeriodMS)
	}
	return PeriodMS(p.PeriodMS)
}

// Buffers returns number of buffers the panel group needs.
func (p PanelConfig) Buffers() int {
	series := p.series()
	switch p.Kind {
	case ScatterPanel:
		return 2 * series
	case FramePanel:
		// frame and its metadata
		return 2
	case ConsolePanel:
		return 1
	}
	return series
}

func (p PanelConfig) series() int {
	if p.Series == 0 {
		return 1
	}
	return p.Series
}

// Validate checks all values of the panel.
func (p PanelConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: panel without name", ErrInvalidConfig)
	}
	switch p.Kind {
	case SeriesPanel, ScatterPanel, ConsolePanel, FramePanel:
	default:
		return fmt.Errorf("%w: panel %q has unknown kind %q", ErrInvalidConfig, p.Name, p.Kind)
	}
	if p.Series < 0 {
		return fmt.Errorf("%w: panel %q has %d series", ErrInvalidConfig, p.Name, p.Series)
	}
	if p.PeriodMS < 0 {
		return fmt.Errorf("%w: panel %q: %v", ErrInvalidPeriod, p.Name, p.PeriodMS)
	}
	if _, err := p.Mode(); err != nil {
		return err
	}
	if err := p.Display.Validate(p.series()); err != nil {
		return fmt.Errorf("panel %q: %w", p.Name, err)
	}
	return nil
}

// MonitorConfig is a layout of the whole dashboard.
type MonitorConfig struct {
	Title  string        `yaml:"title"`
	Panels []PanelConfig `yaml:"panels"`
}

// Validate checks every panel and uniqueness of names.
func (c MonitorConfig) Validate() error {
	names := make(map[string]struct{}, len(c.Panels))
	for _, p := range c.Panels {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, ok := names[p.Name]; ok {
			return fmt.Errorf("%w: duplicate panel %q", ErrInvalidConfig, p.Name)
		}
		names[p.Name] = struct{}{}
	}
	return nil
}

// ParseConfig decodes and validates YAML monitor config.
func ParseConfig(data []byte) (*MonitorConfig, error) {
	var c MonitorConfig
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadConfig reads monitor config from file.
func LoadConfig(path string) (*MonitorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}
