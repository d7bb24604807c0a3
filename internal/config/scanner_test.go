package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/lidarscan/internal/scanner"
	"github.com/banshee-data/lidarscan/internal/scanner/control"
	"github.com/banshee-data/lidarscan/internal/scanner/encoding"
	"github.com/banshee-data/lidarscan/internal/scanner/pointbuf"
	"github.com/banshee-data/lidarscan/internal/scanner/sampling"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadScannerConfig("../../config/scanner.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	// The file must agree with the getter defaults.
	empty := EmptyScannerConfig()
	if cfg.GetRadius() != empty.GetRadius() {
		t.Errorf("radius: file %f, getter %f", cfg.GetRadius(), empty.GetRadius())
	}
	if cfg.GetPointsPerTick() != empty.GetPointsPerTick() {
		t.Errorf("points_per_tick: file %d, getter %d", cfg.GetPointsPerTick(), empty.GetPointsPerTick())
	}
	if cfg.GetShape() != empty.GetShape() {
		t.Errorf("shape: file %q, getter %q", cfg.GetShape(), empty.GetShape())
	}
	if cfg.GetLayerMask() != empty.GetLayerMask() {
		t.Errorf("layer_mask: file %d, getter %d", cfg.GetLayerMask(), empty.GetLayerMask())
	}
	if cfg.GetTickInterval() != empty.GetTickInterval() {
		t.Errorf("tick_interval: file %s, getter %s", cfg.GetTickInterval(), empty.GetTickInterval())
	}
	if len(cfg.GetChannels()) != 1 || cfg.GetChannels()[0].GetResolution() != 100 {
		t.Errorf("unexpected default channels %+v", cfg.GetChannels())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadScannerConfig("../../config/scanner.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	resolved, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resolved.Channels) != 2 {
		t.Fatalf("Expected 2 channels, got %d", len(resolved.Channels))
	}
	hz := resolved.Channels[1]
	if hz.Layout != encoding.LayoutStrip || hz.Policy != pointbuf.PolicyEvictOldest || hz.RejectTag != "Wall" {
		t.Errorf("hazards channel = %+v", hz)
	}
	if hz.Capacity() != 256 {
		t.Errorf("hazards capacity = %d, want 256", hz.Capacity())
	}
	if resolved.Shape != sampling.ShapeBall || resolved.AnchorMode != encoding.AnchorLive {
		t.Errorf("shape=%s anchor=%s", resolved.Shape, resolved.AnchorMode)
	}
	if resolved.SampleWorkers != 4 {
		t.Errorf("sample_workers = %d, want 4", resolved.SampleWorkers)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetCastRange() != 100 {
		t.Errorf("Expected cast_range 100, got %f", cfg.GetCastRange())
	}
}

func TestLoadScannerConfigPartial(t *testing.T) {
	path := writeConfig(t, "partial.json", `{
  "points_per_tick": 8,
  "channels": [{"name": "main", "included_tags": ["Ground"], "resolution": 4, "layout": "strip"}]
}`)
	cfg, err := LoadScannerConfig(path)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}
	if cfg.GetPointsPerTick() != 8 {
		t.Errorf("Expected points_per_tick 8, got %d", cfg.GetPointsPerTick())
	}
	if cfg.GetRadius() != 1.0 {
		t.Errorf("Expected default radius 1.0, got %f", cfg.GetRadius())
	}
	if cfg.GetTickInterval() != 20*time.Millisecond {
		t.Errorf("Expected default tick_interval 20ms, got %v", cfg.GetTickInterval())
	}

	resolved, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	ch := resolved.Channels[0]
	if ch.Capacity() != 4 || ch.Policy != pointbuf.PolicyRotate || ch.Prefab != "Points" {
		t.Errorf("resolved channel = %+v", ch)
	}
	if resolved.LayerMask != scanner.AllLayers {
		t.Errorf("Expected all layers, got %#x", resolved.LayerMask)
	}
	if len(resolved.RejectTags) != 1 || resolved.RejectTags[0] != "PointReject" {
		t.Errorf("Expected default reject tags, got %v", resolved.RejectTags)
	}
}

func TestLoadScannerConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed", `{"radius": `, "parse"},
		{"zero resolution", `{"channels": [{"name": "a", "included_tags": ["Ground"], "resolution": 0}]}`, "resolution"},
		{"zero points", `{"points_per_tick": 0}`, "points_per_tick"},
		{"radius bounds", `{"min_radius": 3, "max_radius": 2}`, "min_radius"},
		{"unknown shape", `{"shape": "cone"}`, "shape"},
		{"unknown anchor", `{"anchor_mode": "floating"}`, "anchor"},
		{"unknown spawn", `{"spawn_at": "camera"}`, "spawn"},
		{"unknown layout", `{"channels": [{"name": "a", "included_tags": ["Ground"], "layout": "hex"}]}`, "layout"},
		{"duplicate channel", `{"channels": [{"name": "a", "included_tags": ["Ground"]}, {"name": "a", "included_tags": ["Wall"]}]}`, "duplicate"},
		{"no tags", `{"channels": [{"name": "a"}]}`, "tag"},
		{"unnamed channel", `{"channels": [{"included_tags": ["Ground"]}]}`, "no name"},
		{"bad tick interval", `{"tick_interval": "soon"}`, "tick_interval"},
		{"negative workers", `{"sample_workers": -2}`, "sample_workers"},
		{"grid over max capacity", `{"channels": [{"name": "a", "included_tags": ["Ground"], "resolution": 4097}]}`, "maximum buffer capacity"},
		{"grid resolution squared overflows", `{"channels": [{"name": "a", "included_tags": ["Ground"], "resolution": 16777216, "layout": "grid"}]}`, "maximum buffer capacity"},
		{"strip over max capacity", `{"channels": [{"name": "a", "included_tags": ["Ground"], "resolution": 16777217, "layout": "strip"}]}`, "maximum buffer capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "bad.json", tt.body)
			_, err := LoadScannerConfig(path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadScannerConfigMissing(t *testing.T) {
	if _, err := LoadScannerConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadScannerConfigRejectsNonJSON(t *testing.T) {
	if _, err := LoadScannerConfig("/some/path/scanner.yaml"); err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadScannerConfigRejectsLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.json")
	if err := os.WriteFile(path, make([]byte, 2*1024*1024), 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}
	if _, err := LoadScannerConfig(path); err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestResolveSetsEveryField(t *testing.T) {
	cfg := &ScannerConfig{
		Channels: []ChannelConfig{{
			Name:         "ring",
			IncludedTags: []string{"Wall"},
			RejectTag:    ptrString("Prop"),
			Prefab:       ptrString("Ring"),
			Resolution:   ptrInt(8),
			Layout:       ptrString("grid"),
			ReuseOldest:  ptrBool(true),
		}},
		Radius:            ptrFloat64(2),
		MinRadius:         ptrFloat64(1),
		MaxRadius:         ptrFloat64(3),
		PointsPerTick:     ptrInt(16),
		CastRange:         ptrFloat64(30),
		Shape:             ptrString("sphere"),
		RejectTags:        []string{},
		AnchorMode:        ptrString("live"),
		SpawnAt:           ptrString("container"),
		ContainerPosition: &[3]float64{1, 2, 3},
		SampleWorkers:     ptrInt(2),
	}
	mask := uint32(0b101)
	cfg.LayerMask = &mask

	got, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := control.Config{
		Channels: []control.ChannelConfig{{
			Name:         "ring",
			IncludedTags: []string{"Wall"},
			RejectTag:    "Prop",
			Prefab:       "Ring",
			Resolution:   8,
			Layout:       encoding.LayoutGrid,
			Policy:       pointbuf.PolicyEvictOldest,
		}},
		Radius:            2,
		MinRadius:         1,
		MaxRadius:         3,
		PointsPerTick:     16,
		CastRange:         30,
		Shape:             sampling.ShapeBall,
		LayerMask:         scanner.LayerMask(0b101),
		RejectTags:        []string{},
		AnchorMode:        encoding.AnchorLive,
		SpawnAt:           control.SpawnAtContainer,
		ContainerPosition: r3.Vec{X: 1, Y: 2, Z: 3},
		SampleWorkers:     2,
	}
	if got.Channels[0].Capacity() != 64 {
		t.Errorf("capacity = %d, want 64", got.Channels[0].Capacity())
	}
	if len(got.RejectTags) != 0 {
		t.Errorf("explicit empty reject_tags should disable global rejects, got %v", got.RejectTags)
	}
	got.RejectTags, want.RejectTags = nil, nil
	if got.Channels[0].Name != want.Channels[0].Name ||
		got.Channels[0].RejectTag != want.Channels[0].RejectTag ||
		got.Channels[0].Prefab != want.Channels[0].Prefab ||
		got.Channels[0].Policy != want.Channels[0].Policy {
		t.Errorf("channel = %+v, want %+v", got.Channels[0], want.Channels[0])
	}
	got.Channels, want.Channels = nil, nil
	if got.Radius != want.Radius || got.MinRadius != want.MinRadius || got.MaxRadius != want.MaxRadius ||
		got.PointsPerTick != want.PointsPerTick || got.CastRange != want.CastRange ||
		got.Shape != want.Shape || got.LayerMask != want.LayerMask ||
		got.AnchorMode != want.AnchorMode || got.SpawnAt != want.SpawnAt ||
		got.ContainerPosition != want.ContainerPosition || got.SampleWorkers != want.SampleWorkers {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := EmptyScannerConfig()
	if cfg.GetMinRadius() != 0.1 || cfg.GetMaxRadius() != 5.0 {
		t.Errorf("radius bounds = [%f, %f]", cfg.GetMinRadius(), cfg.GetMaxRadius())
	}
	if cfg.GetAnchorMode() != "fixed" || cfg.GetSpawnAt() != "scanner" {
		t.Errorf("anchor=%q spawn=%q", cfg.GetAnchorMode(), cfg.GetSpawnAt())
	}
	if cfg.GetContainerPosition() != (r3.Vec{}) {
		t.Errorf("container = %v", cfg.GetContainerPosition())
	}
	if cfg.GetSampleWorkers() != 0 {
		t.Errorf("sample_workers = %d", cfg.GetSampleWorkers())
	}

	bad := "nonsense"
	cfg.TickInterval = &bad
	if cfg.GetTickInterval() != 20*time.Millisecond {
		t.Errorf("Expected fallback tick interval, got %v", cfg.GetTickInterval())
	}

	var ch ChannelConfig
	if ch.GetPrefab() != "Points" || ch.GetResolution() != 100 || ch.GetLayout() != "grid" || ch.GetReuseOldest() {
		t.Errorf("channel defaults = %q %d %q %v", ch.GetPrefab(), ch.GetResolution(), ch.GetLayout(), ch.GetReuseOldest())
	}
}
