package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/control"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
	"github.com/banshee-data/lidarscan/internal/scanner/pointbuf"
	"github.com/banshee-data/lidarscan/internal/scanner/sampling"
)

// DefaultConfigPath is the path to the canonical scanner defaults file.
const DefaultConfigPath = "config/scanner.defaults.json"

// ChannelConfig is the JSON form of one scan channel.
type ChannelConfig struct {
	Name         string   `json:"name"`
	IncludedTags []string `json:"included_tags"`
	RejectTag    *string  `json:"reject_tag,omitempty"`
	Prefab       *string  `json:"prefab,omitempty"`
	Resolution   *int     `json:"resolution,omitempty"`
	Layout       *string  `json:"layout,omitempty"` // "grid" or "strip"
	ReuseOldest  *bool    `json:"reuse_oldest,omitempty"`
}

// ScannerConfig is the root scanner configuration. Fields omitted from the
// JSON fall back to the Get* defaults.
type ScannerConfig struct {
	Channels []ChannelConfig `json:"channels,omitempty"`

	// Sampling
	Radius        *float64 `json:"radius,omitempty"`
	MaxRadius     *float64 `json:"max_radius,omitempty"`
	MinRadius     *float64 `json:"min_radius,omitempty"`
	PointsPerTick *int     `json:"points_per_tick,omitempty"`
	CastRange     *float64 `json:"cast_range,omitempty"`
	Shape         *string  `json:"shape,omitempty"` // "disk" or "ball"
	LayerMask     *uint32  `json:"layer_mask,omitempty"`
	SampleWorkers *int     `json:"sample_workers,omitempty"`

	// Routing
	RejectTags []string `json:"reject_tags,omitempty"`

	// Visual targets
	AnchorMode        *string     `json:"anchor_mode,omitempty"` // "fixed" or "live"
	SpawnAt           *string     `json:"spawn_at,omitempty"`    // "scanner" or "container"
	ContainerPosition *[3]float64 `json:"container_position,omitempty"`

	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "20ms"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }

// EmptyScannerConfig returns a ScannerConfig with every field unset.
func EmptyScannerConfig() *ScannerConfig {
	return &ScannerConfig{}
}

// LoadScannerConfig loads a ScannerConfig from a JSON file. The file must
// have a .json extension and be at most 1MB.
func LoadScannerConfig(path string) (*ScannerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyScannerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or one of its parents. Panics if the file cannot be loaded; intended for
// tests and the simulator's zero-flag start.
func MustLoadDefaultConfig() *ScannerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/scanner/*
		"../../../../" + DefaultConfigPath, // from internal/scanner/storage/sqlite
	}
	for _, path := range candidates {
		if cfg, err := LoadScannerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Validate checks the values that are set. Unset fields are replaced by
// defaults and are always valid.
func (c *ScannerConfig) Validate() error {
	if c.PointsPerTick != nil && *c.PointsPerTick <= 0 {
		return fmt.Errorf("points_per_tick must be positive, got %d", *c.PointsPerTick)
	}
	if c.CastRange != nil && *c.CastRange <= 0 {
		return fmt.Errorf("cast_range must be positive, got %f", *c.CastRange)
	}
	if c.SampleWorkers != nil && *c.SampleWorkers < 0 {
		return fmt.Errorf("sample_workers must be non-negative, got %d", *c.SampleWorkers)
	}
	if lo, hi := c.GetMinRadius(), c.GetMaxRadius(); lo < 0 || lo > hi {
		return fmt.Errorf("min_radius (%f) must be between 0 and max_radius (%f)", lo, hi)
	}
	if c.Radius != nil && *c.Radius < 0 {
		return fmt.Errorf("radius must be non-negative, got %f", *c.Radius)
	}
	if _, err := sampling.ParseShape(c.GetShape()); err != nil {
		return err
	}
	if _, err := encoding.ParseAnchorMode(c.GetAnchorMode()); err != nil {
		return err
	}
	if _, err := control.ParseSpawnRule(c.GetSpawnAt()); err != nil {
		return err
	}
	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive, got %s", d)
		}
	}

	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel %d has no name", i)
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = true
		if len(ch.IncludedTags) == 0 {
			return fmt.Errorf("channel %q must include at least one tag", ch.Name)
		}
		if ch.Resolution != nil && *ch.Resolution <= 0 {
			return fmt.Errorf("channel %q resolution must be positive, got %d", ch.Name, *ch.Resolution)
		}
		layout, err := encoding.ParseLayout(ch.GetLayout())
		if err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		capCheck := control.ChannelConfig{Resolution: ch.GetResolution(), Layout: layout}
		if !capCheck.WithinCapacity() {
			return fmt.Errorf("channel %q resolution %d exceeds the maximum buffer capacity of %d points",
				ch.Name, ch.GetResolution(), control.MaxCapacity)
		}
	}
	return nil
}

// GetChannels returns the configured channels, or a single channel
// recording every demo scene surface when none are set.
func (c *ScannerConfig) GetChannels() []ChannelConfig {
	if len(c.Channels) == 0 {
		return []ChannelConfig{{
			Name:         "world",
			IncludedTags: []string{"Ground", "Wall", "Prop", "Hazard"},
		}}
	}
	return c.Channels
}

// GetRadius returns the radius value or the default.
func (c *ScannerConfig) GetRadius() float64 {
	if c.Radius == nil {
		return 1.0
	}
	return *c.Radius
}

// GetMaxRadius returns the max_radius value or the default.
func (c *ScannerConfig) GetMaxRadius() float64 {
	if c.MaxRadius == nil {
		return 5.0
	}
	return *c.MaxRadius
}

// GetMinRadius returns the min_radius value or the default.
func (c *ScannerConfig) GetMinRadius() float64 {
	if c.MinRadius == nil {
		return 0.1
	}
	return *c.MinRadius
}

// GetPointsPerTick returns the points_per_tick value or the default.
func (c *ScannerConfig) GetPointsPerTick() int {
	if c.PointsPerTick == nil {
		return 32
	}
	return *c.PointsPerTick
}

// GetCastRange returns the cast_range value or the default.
func (c *ScannerConfig) GetCastRange() float64 {
	if c.CastRange == nil {
		return 100
	}
	return *c.CastRange
}

// GetShape returns the shape value or the default.
func (c *ScannerConfig) GetShape() string {
	if c.Shape == nil {
		return "disk"
	}
	return *c.Shape
}

// GetLayerMask returns the layer_mask value or the default (all layers).
func (c *ScannerConfig) GetLayerMask() uint32 {
	if c.LayerMask == nil {
		return uint32(scanner.AllLayers)
	}
	return *c.LayerMask
}

// GetSampleWorkers returns the sample_workers value or the default.
func (c *ScannerConfig) GetSampleWorkers() int {
	if c.SampleWorkers == nil {
		return 0
	}
	return *c.SampleWorkers
}

// GetRejectTags returns the reject_tags value or the default.
func (c *ScannerConfig) GetRejectTags() []string {
	if c.RejectTags == nil {
		return []string{"PointReject"}
	}
	return c.RejectTags
}

// GetAnchorMode returns the anchor_mode value or the default.
func (c *ScannerConfig) GetAnchorMode() string {
	if c.AnchorMode == nil {
		return "fixed"
	}
	return *c.AnchorMode
}

// GetSpawnAt returns the spawn_at value or the default.
func (c *ScannerConfig) GetSpawnAt() string {
	if c.SpawnAt == nil {
		return "scanner"
	}
	return *c.SpawnAt
}

// GetContainerPosition returns the container_position value or the origin.
func (c *ScannerConfig) GetContainerPosition() r3.Vec {
	if c.ContainerPosition == nil {
		return r3.Vec{}
	}
	p := *c.ContainerPosition
	return r3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *ScannerConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 20 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil || d <= 0 {
		return 20 * time.Millisecond
	}
	return d
}

// GetRejectTag returns the reject_tag value or "" (no channel reject).
func (ch ChannelConfig) GetRejectTag() string {
	if ch.RejectTag == nil {
		return ""
	}
	return *ch.RejectTag
}

// GetPrefab returns the prefab value or the default.
func (ch ChannelConfig) GetPrefab() string {
	if ch.Prefab == nil || *ch.Prefab == "" {
		return "Points"
	}
	return *ch.Prefab
}

// GetResolution returns the resolution value or the default.
func (ch ChannelConfig) GetResolution() int {
	if ch.Resolution == nil {
		return 100
	}
	return *ch.Resolution
}

// GetLayout returns the layout value or the default.
func (ch ChannelConfig) GetLayout() string {
	if ch.Layout == nil {
		return "grid"
	}
	return *ch.Layout
}

// GetReuseOldest returns the reuse_oldest value or the default (rotate).
func (ch ChannelConfig) GetReuseOldest() bool {
	if ch.ReuseOldest == nil {
		return false
	}
	return *ch.ReuseOldest
}

// Resolve converts the JSON configuration into the typed controller
// configuration, applying defaults for every unset field.
func (c *ScannerConfig) Resolve() (control.Config, error) {
	if err := c.Validate(); err != nil {
		return control.Config{}, err
	}
	shape, _ := sampling.ParseShape(c.GetShape())
	anchor, _ := encoding.ParseAnchorMode(c.GetAnchorMode())
	spawn, _ := control.ParseSpawnRule(c.GetSpawnAt())

	out := control.Config{
		Radius:            c.GetRadius(),
		MinRadius:         c.GetMinRadius(),
		MaxRadius:         c.GetMaxRadius(),
		PointsPerTick:     c.GetPointsPerTick(),
		CastRange:         c.GetCastRange(),
		Shape:             shape,
		LayerMask:         scanner.LayerMask(c.GetLayerMask()),
		RejectTags:        c.GetRejectTags(),
		AnchorMode:        anchor,
		SpawnAt:           spawn,
		ContainerPosition: c.GetContainerPosition(),
		SampleWorkers:     c.GetSampleWorkers(),
	}
	for _, ch := range c.GetChannels() {
		layout, _ := encoding.ParseLayout(ch.GetLayout())
		policy := pointbuf.PolicyRotate
		if ch.GetReuseOldest() {
			policy = pointbuf.PolicyEvictOldest
		}
		out.Channels = append(out.Channels, control.ChannelConfig{
			Name:         ch.Name,
			IncludedTags: ch.IncludedTags,
			RejectTag:    ch.GetRejectTag(),
			Prefab:       ch.GetPrefab(),
			Resolution:   ch.GetResolution(),
			Layout:       layout,
			Policy:       policy,
		})
	}
	if err := out.Validate(); err != nil {
		return control.Config{}, err
	}
	return out, nil
}
