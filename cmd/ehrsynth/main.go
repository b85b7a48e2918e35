package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aclis/ehrsynth/internal/config"
	"github.com/aclis/ehrsynth/internal/domain/scenario"
	"github.com/aclis/ehrsynth/internal/platform/blobstore"
	"github.com/aclis/ehrsynth/internal/platform/middleware"
	"github.com/aclis/ehrsynth/internal/platform/sandbox"
	"github.com/aclis/ehrsynth/internal/platform/telemetry"
)

const longHelp = `Generates a corpus of synthetic patient records: one causally linked
showcase journey followed by independently drawn filler patients.

With no subcommand, ehrsynth writes synthetic_aclis_records.json.`

// app carries state shared by the commands once flags are parsed.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
	logOut  io.Writer
	out     io.Writer
}

func main() {
	a := &app{logOut: os.Stderr, out: os.Stdout}
	a.logger = zerolog.New(a.logOut).With().Timestamp().Logger()

	if err := a.rootCmd().Execute(); err != nil {
		a.logger.Fatal().Err(err).Msg("ehrsynth failed")
	}
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "ehrsynth",
		Short:             "Synthetic clinical record generator",
		Long:              longHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml, toml or json)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(a.generateCmd())
	rootCmd.AddCommand(a.scenariosCmd())
	rootCmd.AddCommand(a.serveCmd())
	return rootCmd
}

func (a *app) generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Write one corpus artifact (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGenerate(cmd.Context())
		},
	}
}

func (a *app) scenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in showcase scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range scenario.Names() {
				t, err := scenario.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%-12s %d encounters  %s\n", t.Name, len(t.Encounters), t.Description)
			}
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve corpus previews over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServer(cmd.Context())
		},
	}
}

// setup loads configuration and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags(), a.cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logger := zerolog.New(a.logOut).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: a.logOut}).With().Timestamp().Logger()
	}
	a.logger = logger.Level(cfg.Level())
	return nil
}

func (a *app) runGenerate(ctx context.Context) error {
	cfg := a.cfg
	seeder := sandbox.NewSeeder(cfg.SeedConfig(), a.logger)
	a.logger.Info().
		Int64("seed", seeder.Seed()).
		Str("scenario", cfg.Scenario).
		Msg("generating synthetic ACLIS records")

	corpus, result, err := seeder.Generate()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	format := cfg.OutputFormat()
	if err := corpus.Export(&buf, format); err != nil {
		return err
	}

	store, key, err := blobstore.Open(ctx, cfg.Output, cfg.S3Options())
	if err != nil {
		return err
	}
	info, err := store.Put(ctx, key, &buf, format.ContentType())
	if err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		metrics := telemetry.NewMetrics(false)
		metrics.Observe(result)
		metrics.ObserveArtifact(info.Size)
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}

	a.logger.Info().
		Int("patients", result.Patients).
		Int("showcase", result.Showcase).
		Int("filler", result.Filler).
		Int("critical_labs", result.CriticalLabs).
		Str("location", info.Location).
		Int64("bytes", info.Size).
		Str("sha256", info.SHA256).
		Msg("corpus written")
	return nil
}

// newServer wires the preview API. Separated from runServer for tests.
func (a *app) newServer(metrics *telemetry.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	metrics.RegisterRoutes(e)

	g := e.Group("/sandbox", middleware.NoStore(), middleware.RateLimit(a.cfg.RateLimit()))
	sandbox.NewHandler(metrics, a.logger).RegisterRoutes(g)
	return e
}

func (a *app) runServer(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := a.newServer(telemetry.NewMetrics(true))

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.Addr).Msg("starting preview server")
		if err := e.Start(a.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}
