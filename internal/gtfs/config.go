package gtfs

import (
	"time"

	"buslader.app/db/internal/appconf"
)

// Config holds the settings the refresh pipeline needs.
type Config struct {
	// ScratchDir is where per-company workspaces are created
	ScratchDir string
	// MaxFeedBytes caps the size of a downloaded archive
	MaxFeedBytes int64
	// FetchMinInterval is the minimum time between two archive downloads; zero disables pacing
	FetchMinInterval time.Duration
	// Location decides which calendar day "today" is for freshness checks
	Location *time.Location
	Verbose  bool
}

// NewConfig derives the pipeline settings from the process configuration.
func NewConfig(cfg appconf.Config) Config {
	return Config{
		ScratchDir:       cfg.ScratchDir,
		MaxFeedBytes:     cfg.MaxFeedBytes,
		FetchMinInterval: cfg.FetchMinInterval,
		Location:         cfg.Location(),
		Verbose:          cfg.Verbose,
	}
}

func (c Config) maxFeedBytes() int64 {
	if c.MaxFeedBytes <= 0 {
		return appconf.DefaultMaxFeedBytes
	}
	return c.MaxFeedBytes
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
