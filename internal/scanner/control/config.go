package control

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
	"github.com/banshee-data/lidarscan/internal/scanner/pointbuf"
	"github.com/banshee-data/lidarscan/internal/scanner/sampling"
)

// SpawnRule picks where new visual targets (and therefore buffer anchors)
// are placed.
type SpawnRule int

const (
	// SpawnAtScanner places targets at the scanner origin at the moment of
	// activation or rotation.
	SpawnAtScanner SpawnRule = iota
	// SpawnAtContainer places every target at the configured container
	// position.
	SpawnAtContainer
)

// ParseSpawnRule maps a config string to a SpawnRule.
func ParseSpawnRule(s string) (SpawnRule, error) {
	switch s {
	case "scanner", "":
		return SpawnAtScanner, nil
	case "container":
		return SpawnAtContainer, nil
	}
	return 0, fmt.Errorf("unknown spawn rule %q", s)
}

// MaxCapacity bounds the points one buffer may hold, the record count of a
// 4096 x 4096 frame.
const MaxCapacity = 4096 * 4096

// ChannelConfig describes one scan channel.
type ChannelConfig struct {
	Name         string
	IncludedTags []string
	RejectTag    string
	Prefab       string
	Resolution   int
	Layout       encoding.Layout
	Policy       pointbuf.Policy
}

// Capacity is the number of points one buffer of this channel holds.
func (c ChannelConfig) Capacity() int {
	w, h := c.Layout.Dimensions(c.Resolution)
	return w * h
}

// WithinCapacity reports whether a positive resolution yields a buffer of
// at most MaxCapacity points. It never multiplies past MaxCapacity.
func (c ChannelConfig) WithinCapacity() bool {
	w, h := c.Layout.Dimensions(c.Resolution)
	if w <= 0 || h <= 0 {
		return false
	}
	return w <= MaxCapacity && h <= MaxCapacity/w
}

// Config is the resolved, typed scanner configuration.
type Config struct {
	Channels []ChannelConfig

	Radius    float64
	MinRadius float64
	MaxRadius float64

	PointsPerTick int
	CastRange     float64
	Shape         sampling.Shape
	LayerMask     scanner.LayerMask
	RejectTags    []string

	AnchorMode        encoding.AnchorMode
	SpawnAt           SpawnRule
	ContainerPosition r3.Vec

	// SampleWorkers > 1 casts rays concurrently; see sampling.Sampler.
	SampleWorkers int
}

// Validate rejects configurations that could only fail mid-scan.
func (c Config) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: at least one channel is required", scanner.ErrInvalidConfig)
	}
	if c.PointsPerTick <= 0 {
		return fmt.Errorf("%w: points_per_tick must be positive, got %d", scanner.ErrInvalidConfig, c.PointsPerTick)
	}
	if c.CastRange <= 0 {
		return fmt.Errorf("%w: cast_range must be positive, got %g", scanner.ErrInvalidConfig, c.CastRange)
	}
	if c.MinRadius < 0 || c.MinRadius > c.MaxRadius {
		return fmt.Errorf("%w: radius bounds [%g, %g] are invalid", scanner.ErrInvalidConfig, c.MinRadius, c.MaxRadius)
	}
	if c.SampleWorkers < 0 {
		return fmt.Errorf("%w: sample_workers must be non-negative, got %d", scanner.ErrInvalidConfig, c.SampleWorkers)
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("%w: channel %d has no name", scanner.ErrInvalidConfig, i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("%w: duplicate channel %q", scanner.ErrInvalidConfig, ch.Name)
		}
		seen[ch.Name] = true
		if ch.Resolution <= 0 {
			return fmt.Errorf("%w: channel %q resolution must be positive, got %d", scanner.ErrInvalidConfig, ch.Name, ch.Resolution)
		}
		if !ch.WithinCapacity() {
			return fmt.Errorf("%w: channel %q resolution %d exceeds the maximum buffer capacity of %d points",
				scanner.ErrInvalidConfig, ch.Name, ch.Resolution, MaxCapacity)
		}
		if len(ch.IncludedTags) == 0 {
			return fmt.Errorf("%w: channel %q accepts no tags", scanner.ErrInvalidConfig, ch.Name)
		}
	}
	return nil
}
