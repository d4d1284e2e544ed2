package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/api"
	"github.com/bryanchriswhite/ScreenGuard/internal/config"
	"github.com/bryanchriswhite/ScreenGuard/internal/detection"
	"github.com/bryanchriswhite/ScreenGuard/internal/events"
	"github.com/bryanchriswhite/ScreenGuard/internal/facility/portal"
	"github.com/bryanchriswhite/ScreenGuard/internal/facility/watchdir"
	"github.com/bryanchriswhite/ScreenGuard/internal/guard"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/bryanchriswhite/ScreenGuard/internal/recording"
	"github.com/bryanchriswhite/ScreenGuard/internal/snapshot"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface/x11"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ScreenGuard daemon",
	Long: `Start the ScreenGuard daemon with X11 window tracking and the HTTP API.

Capture detection is off until a host starts it through the API, the
"detect start" command or the --detect flag.`,
	Example: `  # Start on the default port (8090)
  screenguard serve

  # Start with detection enabled and the portal facility
  SCREENGUARD_DETECTION_SOURCE=portal screenguard serve --detect

  # Start with debug logging
  screenguard serve --log-level debug --pretty`,
	RunE: runServe,
}

var serveDetect bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveDetect, "detect", false, "start capture detection immediately")
}

func newFacility(cfg *config.Config) detection.Facility {
	if cfg.Detection.Source == config.SourcePortal {
		return portal.New(cfg.Detection.MinPortalVersion)
	}
	dirs := cfg.Detection.WatchDirs
	if len(dirs) == 0 {
		dirs = watchdir.DefaultDirs()
	}
	return watchdir.New(dirs, cfg.Detection.Extensions)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("source", cfg.Detection.Source).
		Dur("cooldown", cfg.Detection.Cooldown).
		Msg("Configuration loaded")

	shieldColor, err := x11.ParseColor(cfg.Shield.Color)
	if err != nil {
		return err
	}
	tracker, err := x11.NewTracker(x11.Options{
		Patterns:    cfg.Surface.Patterns,
		ShieldColor: shieldColor,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize window tracking: %w", err)
	}
	defer tracker.Close()

	g := guard.New(guard.Options{
		Facility: newFacility(cfg),
		Surfaces: tracker,
		Snapshot: snapshot.NewProducer(cfg.Snapshot.MaxWidth),
		Recorder: recording.NewProbe(cfg.Recording.ProcessNames),
		Bus:      events.NewBus(32),
		Cooldown: cfg.Detection.Cooldown,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveDetect {
		if err := g.StartScreenCaptureDetection(ctx); err != nil {
			log.Warn().Err(err).Str("code", guard.Code(err)).Msg("Capture detection not started")
		}
	}

	server := api.NewServer(g)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return tracker.Run(gctx)
	})
	group.Go(func() error {
		return server.Run(gctx, cfg.ServerPort)
	})

	log.Info().
		Int("port", cfg.ServerPort).
		Str("events", fmt.Sprintf("ws://localhost:%d/api/events", cfg.ServerPort)).
		Msg("ScreenGuard is running")

	err = group.Wait()

	log.Info().Msg("Shutting down gracefully")
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g.Close(closeCtx)

	return err
}
