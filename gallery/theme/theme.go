// Package theme picks light or dark assets from the time of day.
package theme

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	darkFrom  = 17 // inclusive hour
	darkUntil = 6  // exclusive hour
)

// Mode is the visual theme.
type Mode string

const (
	Light Mode = "light"
	Dark  Mode = "dark"
)

// Clock evaluates the theme in a fixed time zone.
type Clock struct {
	loc *time.Location
}

// NewClock loads the named zone, falling back to the system zone when the
// zone database is unavailable.
func NewClock(zone string, logger zerolog.Logger) *Clock {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", zone).Msg("time zone unavailable, using system time")
		loc = time.Local
	}
	return &Clock{loc: loc}
}

// Location returns the zone the clock evaluates in.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// IsDark reports whether t falls between 17:00 and 06:00 local time.
func (c *Clock) IsDark(t time.Time) bool {
	h := t.In(c.loc).Hour()
	return h >= darkFrom || h < darkUntil
}

// Mode returns the theme for t.
func (c *Clock) Mode(t time.Time) Mode {
	if c.IsDark(t) {
		return Dark
	}
	return Light
}

// Pick returns dark when it is dark and the file exists, light otherwise.
func (c *Clock) Pick(light, dark string, t time.Time) string {
	if !c.IsDark(t) {
		return light
	}
	if _, err := os.Stat(dark); err != nil {
		return light
	}
	return dark
}
