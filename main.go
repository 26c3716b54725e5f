package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/fzft/go-wcam/config"
	"github.com/fzft/go-wcam/log"
	"github.com/fzft/go-wcam/metrics"
	"github.com/fzft/go-wcam/video"
	"github.com/fzft/go-wcam/wcam"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration")
	logLevel := flag.String("log-level", "", "log level, overrides log_level from the configuration")
	showVersion := flag.Bool("version", false, "print build information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildInfo())
		return
	}

	cfg, cfgErr := config.Load(*configPath)
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := log.InitLogger(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "wcamd: %s\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	for _, err := range multierr.Errors(cfgErr) {
		if errors.Is(err, config.ErrInvalidValue) {
			log.Logger.Warn("configuration value replaced by default", zap.String("path", *configPath), zap.Error(err))
		} else {
			log.Logger.Warn("using default configuration", zap.String("path", *configPath), zap.Error(err))
		}
	}
	log.Logger.Info("starting", zap.String("build", buildInfo()))

	if err := run(cfg); err != nil {
		log.Logger.Error("server failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	dev, err := video.NewPatternDevice(cfg.CamFmtNr, cfg.CamFrmNr, cfg.CamFPS)
	if err != nil {
		return err
	}
	log.Logger.Info("capturing from test pattern", zap.String("camdev", cfg.CamDev),
		zap.Stringer("format", dev.Format()), zap.Stringer("size", dev.FrameSize()), zap.Int("fps", cfg.CamFPS))

	var opts []wcam.Option
	if cfg.FbDev != "" {
		disp, err := video.OpenFramebuffer(cfg.FbDev, cfg.FbBpp, cfg.FbWidth, cfg.FbHeight)
		if err != nil {
			return fmt.Errorf("open framebuffer: %w", err)
		}
		opts = append(opts, wcam.WithDisplay(disp))
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		opts = append(opts, wcam.WithMetrics(m))
	}

	srv, err := wcam.New(cfg, dev, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if m != nil {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Logger.Info("shutting down server")
		srv.Shutdown()
	}()

	err = srv.Run()
	cancel()
	return multierr.Append(err, srv.Close())
}
