// Command monitor runs the live RSU presence loop: it polls the capture file
// on a vehicle OBU over SSH, derives per-second throughput samples, and logs
// ENTRY/EXIT coverage events with the current GPS fix.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/charan268/RSU-Range-Field-Testing/internal/config"
	"github.com/charan268/RSU-Range-Field-Testing/internal/db"
	"github.com/charan268/RSU-Range-Field-Testing/internal/detector"
	"github.com/charan268/RSU-Range-Field-Testing/internal/obu"
	"github.com/charan268/RSU-Range-Field-Testing/internal/report"
	"github.com/charan268/RSU-Range-Field-Testing/internal/telemetry"
	"github.com/charan268/RSU-Range-Field-Testing/internal/version"
)

func main() {
	var configPath string
	var showVersion bool
	var host string
	var user string
	var password string
	var outDir string
	var dbPath string
	var runID string

	flag.StringVar(&configPath, "config", "", "path to monitor tuning JSON (optional)")
	flag.StringVar(&host, "host", "", "OBU address (overrides config)")
	flag.StringVar(&user, "user", "", "SSH user (overrides config)")
	flag.StringVar(&password, "password", "", "SSH password (overrides config)")
	flag.StringVar(&outDir, "out", "", "output directory (overrides config)")
	flag.StringVar(&dbPath, "db", "", "optional sqlite path to also persist the run")
	flag.StringVar(&runID, "run-id", "", "run identifier (default: random uuid)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := config.EmptyMonitorConfig()
	if configPath != "" {
		loaded, err := config.LoadMonitorConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	if host != "" {
		cfg.Host = &host
	}
	if user != "" {
		cfg.User = &user
	}
	if password != "" {
		cfg.Password = &password
	}
	if outDir != "" {
		cfg.OutDir = &outDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runID == "" {
		runID = uuid.NewString()
	}

	if err := run(ctx, cfg, dbPath, runID); err != nil {
		log.Fatalf("monitor: %v", err)
	}
}

func run(ctx context.Context, cfg *config.MonitorConfig, dbPath, runID string) error {
	addr := fmt.Sprintf("%s:%d", cfg.GetHost(), cfg.GetPort())
	log.Printf("connecting to OBU at %s as %s", addr, cfg.GetUser())

	session, err := obu.Dial(addr, cfg.GetUser(), cfg.GetPassword(), 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial OBU: %w", err)
	}
	defer session.Close()

	gps := obu.NewGPS(session)
	gps.Command = cfg.GetKinematicsCmd()

	det, err := detector.New(detector.Config{
		RemotePath:      cfg.GetRemoteRxPath(),
		PacketSizeBytes: float64(cfg.GetPacketSizeBytes()),
		PollInterval:    cfg.GetPollInterval(),
		EntryTicks:      cfg.GetEntryTicks(),
		ExitTicks:       cfg.GetExitTicks(),
		WindowTicks:     cfg.GetWindowTicks(),
	}, session, gps)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.GetOutDir(), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	metrics, err := telemetry.NewMetricsWriter(filepath.Join(cfg.GetOutDir(), "obu_metrics_log.csv"))
	if err != nil {
		return err
	}
	defer metrics.Close()

	events, err := telemetry.NewEventsWriter(filepath.Join(cfg.GetOutDir(), "obu_events_log.csv"))
	if err != nil {
		return err
	}
	defer events.Close()

	eventMap := report.NewEventMap(filepath.Join(cfg.GetOutDir(), "obu_events_map.html"))

	var store *db.DB
	if dbPath != "" {
		store, err = db.NewDB(dbPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		if err := store.BeginRun(runID, cfg.GetHost(), cfg.GetRemoteRxPath(), time.Now()); err != nil {
			return err
		}
		defer func() {
			if err := store.EndRun(runID, time.Now()); err != nil {
				log.Printf("end run: %v", err)
			}
		}()
	}

	if err := det.Prime(ctx); err != nil {
		return fmt.Errorf("prime detector: %w", err)
	}
	log.Printf("run %s: watching %s every %s", runID, cfg.GetRemoteRxPath(), cfg.GetPollInterval())

	ticker := time.NewTicker(cfg.GetPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("run %s: stopping (%v)", runID, ctx.Err())
			return nil
		case now := <-ticker.C:
			res, err := det.Tick(ctx, now)
			if err != nil {
				if errors.Is(err, detector.ErrLinkLost) {
					log.Printf("run %s: %v; shutting down", runID, err)
					return nil
				}
				return err
			}

			if err := metrics.Append(res.Sample); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
			if store != nil {
				if err := store.RecordSample(runID, res.Sample); err != nil {
					log.Printf("record sample: %v", err)
				}
			}

			if res.Event != nil {
				log.Printf("run %s: %s %s", runID, res.Event.Type, res.Event.Reason)
				if err := events.Append(*res.Event); err != nil {
					return fmt.Errorf("write event: %w", err)
				}
				if err := eventMap.Record(*res.Event); err != nil {
					log.Printf("update event map: %v", err)
				}
				if store != nil {
					if err := store.RecordEvent(runID, *res.Event); err != nil {
						log.Printf("record event: %v", err)
					}
				}
			}
		}
	}
}
