// Command scansim runs the point scanner against the demo room: it drives
// the scan controller on a fixed timestep with a scripted trigger and an
// orbiting aim, optionally persisting retired buffers to SQLite, serving
// the debug monitor and writing a top-down plot of the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/lidarscan/internal/config"
	"github.com/banshee-data/lidarscan/internal/monitoring"
	"github.com/banshee-data/lidarscan/internal/scanner/monitor"
	"github.com/banshee-data/lidarscan/internal/timeutil"
	"github.com/banshee-data/lidarscan/internal/version"
)

var (
	configPath   = flag.String("config", "", "Scanner config JSON (default: "+config.DefaultConfigPath+" if present)")
	ticks        = flag.Int("ticks", 500, "Number of ticks to run (0 = until interrupted)")
	seed         = flag.Int64("seed", 1, "Random seed for ray sampling")
	dbPath       = flag.String("db", "", "SQLite database for sessions and retired buffers (disabled if empty)")
	plotDir      = flag.String("plot-dir", "", "Directory for the final PNG plot (disabled if empty)")
	listen       = flag.String("listen", "", "Debug monitor listen address, e.g. :8090 (disabled if empty)")
	holdTicks    = flag.Int("hold-ticks", 120, "Ticks the scripted trigger is held")
	releaseTicks = flag.Int("release-ticks", 30, "Ticks the scripted trigger is released (0 = always held)")
	orbitPeriod  = flag.Duration("orbit-period", 8*time.Second, "Time for the aim point to circle the scanner")
	orbitRadius  = flag.Float64("orbit-radius", 6, "Horizontal distance from scanner to aim point in metres")
	debug        = flag.Bool("debug", false, "Log per-tick diagnostics")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("scansim %s\n", version.String())
		return
	}
	monitoring.SetDebug(*debug)
	log.Printf("[Scansim] scansim %s", version.String())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sim, err := newSimulation(cfg, options{
		seed:         *seed,
		dbPath:       *dbPath,
		plotDir:      *plotDir,
		holdTicks:    *holdTicks,
		releaseTicks: *releaseTicks,
		orbitPeriod:  *orbitPeriod,
		orbitRadius:  *orbitRadius,
	})
	if err != nil {
		log.Fatalf("failed to start scanner: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listen != "" {
		srv := monitor.NewServer(monitor.Config{Address: *listen, Targets: sim.pool})
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Printf("[Scansim] monitor stopped: %v", err)
			}
		}()
	}

	n, err := timeutil.RunFixed(ctx, timeutil.RealClock{}, cfg.GetTickInterval(), *ticks, sim.step)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Scansim] stopped after %d ticks: %v", n, err)
	}
	if err := sim.finish(n); err != nil {
		log.Fatalf("failed to finish session: %v", err)
	}
}

// loadConfig loads path, or the defaults file when path is empty. Without
// either, the built-in defaults are used.
func loadConfig(path string) (*config.ScannerConfig, error) {
	if path != "" {
		return config.LoadScannerConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadScannerConfig(config.DefaultConfigPath)
	}
	log.Printf("[Scansim] %s not found, using built-in defaults", config.DefaultConfigPath)
	return config.EmptyScannerConfig(), nil
}
