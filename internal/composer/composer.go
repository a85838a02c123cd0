package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
)

const (
	DefaultMapBaseURL = "https://www.google.com/maps/search/?api=1&query="

	preamble    = "EMERGENCY ALERT (SafeHer)\nI need help!"
	closingLine = "Please check on me immediately!"
	timeLayout  = "2006-01-02 15:04:05 MST"
)

// Composer builds alert text. It holds no mutable state and is safe for concurrent use.
type Composer struct {
	mapBaseURL string
}

func New(mapBaseURL string) *Composer {
	mapBaseURL = strings.TrimSpace(mapBaseURL)
	if mapBaseURL == "" {
		mapBaseURL = DefaultMapBaseURL
	}
	return &Composer{mapBaseURL: mapBaseURL}
}

// MapLink returns the map search URL for p with six decimal places.
func (c *Composer) MapLink(p domain.Position) string {
	return fmt.Sprintf("%s%.6f,%.6f", c.mapBaseURL, p.Latitude, p.Longitude)
}

// Compose returns the alert message. Identical inputs always produce identical text.
func (c *Composer) Compose(p domain.Position, address string, at time.Time) string {
	lines := make([]string, 0, 6)
	lines = append(lines, preamble)
	if address = strings.TrimSpace(address); address != "" {
		lines = append(lines, "I'm near "+address)
	}
	lines = append(lines,
		"My location: "+c.MapLink(p),
		"Sent at "+at.UTC().Format(timeLayout),
		closingLine,
	)
	return strings.Join(lines, "\n")
}

