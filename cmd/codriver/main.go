package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tarmac-rally/codriver/internal/config"
	"github.com/tarmac-rally/codriver/internal/log"
	"github.com/tarmac-rally/codriver/internal/metrics"
	"github.com/tarmac-rally/codriver/internal/publisher"
	"github.com/tarmac-rally/codriver/pkg/caller"
	"github.com/tarmac-rally/codriver/pkg/engine"
	"github.com/tarmac-rally/codriver/pkg/geo"
	"github.com/tarmac-rally/codriver/pkg/roadnet"
	"github.com/tarmac-rally/codriver/pkg/sim"
	"github.com/tarmac-rally/codriver/pkg/speech"
	"github.com/tarmac-rally/codriver/pkg/web"
)

func main() {
	configPath := flag.String("config", "codriver.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	lg := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Map.PBFPath == "" {
		lg.Error("no map configured, set map.pbf_path or CODRIVER_PBF")
		os.Exit(1)
	}
	net, err := roadnet.LoadPBFCached(ctx, cfg.Map.PBFPath, cfg.Map.CacheDir, lg)
	if err != nil {
		lg.Error("load road network", "path", cfg.Map.PBFPath, "err", err)
		os.Exit(1)
	}

	src, err := buildSource(cfg, net)
	if err != nil {
		lg.Error("position source", "mode", cfg.Source.Mode, "err", err)
		os.Exit(1)
	}
	defer src.Close()

	var sinks caller.MultiSink
	var queue *speech.Queue
	if cfg.Speech.Enabled {
		sp, err := speech.NewExec(speech.ExecOptions{
			Voice:    cfg.Speech.Voice,
			SpeedWPM: cfg.Speech.SpeedWPM,
			Effects:  cfg.Speech.Effects,
		})
		if err != nil {
			lg.Warn("speech disabled", "err", err)
		} else {
			queue = speech.NewQueue(sp, time.Duration(cfg.Speech.StaleAfterS*float64(time.Second)))
			sinks = append(sinks, queue)
		}
	}

	var srv *web.Server
	if cfg.Dashboard.Enabled {
		srv = web.NewServer(cfg.Dashboard.Addr)
		sinks = append(sinks, srv)
		go func() {
			if err := srv.Start(); err != nil {
				lg.Error("dashboard server", "err", err)
			}
		}()
	}

	if cfg.NATS.Enabled {
		pub, err := publisher.NewNATS(cfg.NATS.URL)
		if err != nil {
			lg.Warn("nats disabled", "url", cfg.NATS.URL, "err", err)
		} else {
			defer pub.Close()
			sinks = append(sinks, pub)
		}
	}

	var col *metrics.Collector
	if cfg.Metrics.Enabled {
		col = metrics.New()
		go func() {
			if err := col.Serve(ctx, cfg.Metrics.Addr); err != nil {
				lg.Error("metrics server", "err", err)
			}
		}()
	}

	sched := caller.New(sinks, caller.Options{
		MinLeadM:       cfg.Caller.MinLeadM,
		LeadTimeS:      cfg.Caller.LeadTimeS,
		GraceM:         cfg.Caller.GraceM,
		MergeDistanceM: cfg.Pipeline.MergeDistanceM,
	})

	opts := engine.Options{
		LookaheadM:        cfg.Pipeline.LookaheadM,
		HeadingTolDeg:     cfg.Pipeline.HeadingTolDeg,
		SnapToleranceM:    cfg.Pipeline.SnapToleranceM,
		SampleStepM:       cfg.Pipeline.SampleStepM,
		CornerMinRadiusM:  cfg.Pipeline.CornerMinRadiusM,
		CornerMinAngleDeg: cfg.Pipeline.CornerMinAngleDeg,
		MergeDistanceM:    cfg.Pipeline.MergeDistanceM,
		Metrics:           col,
	}
	if srv != nil {
		opts.OnTick = srv.ObserveTick
	}
	eng := engine.New(net, src, sched, opts)

	lg.Info("codriver running",
		"source", cfg.Source.Mode,
		"speech", queue != nil,
		"dashboard", cfg.Dashboard.Enabled,
		"nats", cfg.NATS.Enabled)

	if err := eng.Run(ctx); err != nil {
		lg.Error("engine stopped", "err", err)
	}

	if queue != nil {
		if err := queue.Close(); err != nil {
			lg.Warn("speech shutdown", "err", err)
		}
	}
	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			lg.Warn("dashboard shutdown", "err", err)
		}
	}
	lg.Info("codriver stopped")
}

func buildSource(cfg *config.Config, net *roadnet.Network) (sim.Source, error) {
	switch cfg.Source.Mode {
	case "trace":
		return sim.NewTraceReplay(cfg.Source.TracePath, sim.TraceOptions{
			SpeedMultiplier: cfg.Source.SpeedMultiplier,
		})
	default:
		start := geo.Position{
			Point:   geo.Point{Lat: cfg.Source.StartLat, Lon: cfg.Source.StartLon},
			Heading: cfg.Source.StartHeading,
			Speed:   cfg.Source.SpeedMPS,
		}
		return sim.NewRouteSim(net, start, sim.RouteOptions{
			SpeedMPS: cfg.Source.SpeedMPS,
		}), nil
	}
}
