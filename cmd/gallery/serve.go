package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	internal "github.com/ZanzyTHEbar/twinkle-gallery/gallery"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/auth"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/editor"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/generation"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/server"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/session"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/theme"
)

// ServeCmd starts the web editor.
type ServeCmd struct {
	Listen string `help:"Address to listen on." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(g *Globals) error {
	extra := map[string]any{}
	if c.Listen != "" {
		extra["listen"] = c.Listen
	}
	cfg, logger, err := g.load(extra)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := dataset.NewWatcher(cfg.Data.Path, logger)
	if err != nil {
		return fmt.Errorf("watching dataset: %w", err)
	}
	defer watcher.Close()
	go watcher.Run(ctx)

	users := auth.NewDirectory(cfg.Users, logger)
	if users.Len() == 0 {
		logger.Warn().Msg("no users configured; editing is disabled until [[users]] is added to the secrets file")
	}

	generator := generation.NewFactory(cfg.LLM, logger).CreateGenerator()

	ed := editor.New(editor.Options{
		Users:       users,
		Throttle:    auth.NewThrottle(auth.DefaultLoginBurst, auth.DefaultLoginRefill),
		Generator:   generator,
		Temperature: generation.RandomTemperature,
		Changes:     watcher.Changes,
	}, logger)

	sessions := session.NewManager(session.Options{
		Open: func() (*dataset.Store, error) {
			return dataset.Open(cfg.Data.Path, logger)
		},
		Changes:     watcher.Changes,
		Temperature: generation.RandomTemperature,
		IdleTTL:     internal.DefaultSessionIdleTTL,
	}, logger)

	srv, err := server.New(server.Options{
		AppName:   internal.DefaultAppName,
		Editor:    ed,
		Sessions:  sessions,
		Clock:     theme.NewClock(cfg.Theme.Timezone, logger),
		LogoLight: cfg.Theme.LogoLight,
		LogoDark:  cfg.Theme.LogoDark,
	}, logger)
	if err != nil {
		return err
	}
	if err := srv.Listen(cfg.Server.Listen); err != nil {
		return err
	}

	logger.Info().
		Str("data", cfg.Data.Path).
		Str("model", cfg.LLM.Model).
		Bool("generation", generator.Available()).
		Bool("vision", cfg.LLM.SupportsVision).
		Int("users", users.Len()).
		Msg("starting")

	return srv.Serve(ctx)
}
