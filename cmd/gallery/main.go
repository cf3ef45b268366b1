package main

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	internal "github.com/ZanzyTHEbar/twinkle-gallery/gallery"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/config"
)

// Globals are flags shared by every command.
type Globals struct {
	Config   string `help:"Path to the secrets file (TOML)." short:"c" type:"path"`
	Data     string `help:"Path to the JSONL dataset." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." name:"log-level"`
}

var cli struct {
	Globals

	Serve        ServeCmd        `cmd:"" default:"withargs" help:"Start the annotation editor."`
	HashPassword HashPasswordCmd `cmd:"" name:"hash-password" help:"Print a bcrypt hash for the secrets file."`
	Sanitize     SanitizeCmd     `cmd:"" help:"Sanitize text read from stdin."`
	Stats        StatsCmd        `cmd:"" help:"Show dataset completion."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name(internal.DefaultAppName),
		kong.Description("Image/text dataset annotation editor."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

// overrides maps non-empty flags onto config keys.
func (g *Globals) overrides(extra map[string]any) map[string]any {
	out := map[string]any{}
	if g.Data != "" {
		out["data"] = g.Data
	}
	if g.LogLevel != "" {
		out["log_level"] = g.LogLevel
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (g *Globals) load(extra map[string]any) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(g.Config, g.overrides(extra))
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.Server.LogLevel), nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Str("app", internal.DefaultAppName).
		Logger()
}
