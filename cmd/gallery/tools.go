package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/auth"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/generation"
)

// HashPasswordCmd prints a password_hash value.
type HashPasswordCmd struct {
	Password string `arg:"" optional:"" help:"Password to hash; read from stdin when omitted."`
}

func (c *HashPasswordCmd) Run(g *Globals) error {
	pw := c.Password
	if pw == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading password: %w", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// SanitizeCmd filters stdin through the answer sanitizer.
type SanitizeCmd struct{}

func (c *SanitizeCmd) Run(g *Globals) error {
	in, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	fmt.Println(generation.NewSanitizer().Sanitize(string(in)))
	return nil
}

// StatsCmd reports dataset completion.
type StatsCmd struct{}

func (c *StatsCmd) Run(g *Globals) error {
	cfg, logger, err := g.load(nil)
	if err != nil {
		return err
	}

	store, err := dataset.Open(cfg.Data.Path, logger)
	if err != nil {
		return err
	}
	p := store.Progress()
	stats := store.Stats()

	bold := color.New(color.Bold)
	pct := color.New(color.FgYellow)
	switch {
	case p.Total > 0 && p.Completed == p.Total:
		pct = color.New(color.FgGreen)
	case p.Completed == 0:
		pct = color.New(color.FgRed)
	}

	bold.Println(store.Path())
	fmt.Printf("  completed  %d / %d  ", p.Completed, p.Total)
	pct.Printf("(%d%%)\n", p.Percent)
	fmt.Printf("  empty      %d\n", len(store.EmptyIndices()))
	if stats.Skipped > 0 {
		color.New(color.FgRed).Printf("  skipped    %d malformed line(s)\n", stats.Skipped)
	}
	return nil
}
