package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tijuhasz/osm/config"
	"github.com/tijuhasz/osm/geom"
	"github.com/tijuhasz/osm/graph"
	"github.com/tijuhasz/osm/osm"
	"github.com/tijuhasz/osm/routing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.OsmPBF, "pbf", cfg.OsmPBF, "path to an OSM PBF extract")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	flag.Float64Var(&cfg.SnapMeters, "snap", cfg.SnapMeters, "reuse way nodes this close to a projection (meters)")
	flag.StringVar(&cfg.Calculator, "calc", cfg.Calculator, "distance calculator: haversine, greatcircle or s2")
	flag.Float64Var(&cfg.MaxCandidateMeters, "radius", cfg.MaxCandidateMeters, "candidate way search radius (meters), 0 for nearest")
	flag.IntVar(&cfg.MaxCandidates, "candidates", cfg.MaxCandidates, "maximum candidate ways per point")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("osmroute starting", "calculator", cfg.Calculator, "snap_meters", cfg.SnapMeters)

	calc, err := cfg.CalculatorImpl()
	if err != nil {
		logger.Error("invalid calculator", "error", err)
		os.Exit(1)
	}

	store := graph.NewStore()
	index := geom.NewWayIndex()
	if cfg.OsmPBF != "" {
		logger.Info("loading graph", "file", cfg.OsmPBF)
		index, _, err = osm.LoadOsmFile(cfg.OsmPBF, store, calc, logger.With("component", "osm"))
		if err != nil {
			logger.Error("failed to load graph", "file", cfg.OsmPBF, "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no PBF file given, starting with an empty graph")
	}

	router := routing.NewRouter(
		routing.WithCalculator(calc),
		routing.WithSnapMeters(cfg.SnapMeters),
		routing.WithLogger(logger.With("component", "routing")),
	)
	finder := routing.NewCandidateFinder(index)
	finder.MaxCandidateDist = cfg.MaxCandidateMeters
	finder.MaxCandidates = cfg.MaxCandidates

	server := NewServer(store, router, finder, logger.With("component", "server"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start background metrics logging (every 30 seconds)
	server.startMetricsLogger(ctx, 30*time.Second)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shut down", "error", err)
	}
	logger.Info("server stopped")
}
