package database

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/jsonfile"
	"github.com/erikbos/tvloop/database/model"
	"github.com/erikbos/tvloop/database/sqlite"
)

type (
	// Config holds the storage configuration.
	Config struct {
		// Type of the play counter backend: "json" or "sqlite".
		Type string `mapstructure:"type"`
		// Filename of the play counter storage. Defaults to plays.json or plays.db in Dir.
		Filename string `mapstructure:"filename"`
		// Dir holds the JSON documents.
		Dir string `mapstructure:"-"`
		// FallbackChannel is returned when no active channel is stored.
		FallbackChannel string `mapstructure:"-"`
	}

	// Repository is the state store used by the scheduler, the remote and the API.
	Repository interface {
		CatalogRepo
		ChannelRepo
		PlayRepo
		SettingsRepo
	}

	// CatalogRepo defines the video catalog operations.
	CatalogRepo interface {
		// GetCatalog returns all videos.
		GetCatalog(ctx context.Context) (model.Catalog, error)
		// GetVideo returns one video.
		GetVideo(ctx context.Context, videoID string) (*model.Video, error)
		// SaveVideo inserts or replaces a video.
		SaveVideo(ctx context.Context, video model.Video) error
		// DeleteVideo removes a video, ErrNotFound if it is not in the catalog.
		DeleteVideo(ctx context.Context, videoID string) error
		// UpdateCatalog applies fn to the catalog and stores the result if fn returns true.
		UpdateCatalog(ctx context.Context, fn func(model.Catalog) bool) error
	}

	// ChannelRepo defines the channel and active channel operations.
	ChannelRepo interface {
		// GetChannels returns all channels.
		GetChannels(ctx context.Context) (model.Channels, error)
		// GetChannel returns one channel, ErrNotFound if unknown.
		GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
		// SaveChannel stores a channel, assigning the next free id when ID is empty.
		SaveChannel(ctx context.Context, channel model.Channel) (channelID string, err error)
		// DeleteChannel removes a channel.
		DeleteChannel(ctx context.Context, channelID string) error
		// GetActiveChannel returns the stored active channel id, or the fallback id.
		GetActiveChannel(ctx context.Context) (string, error)
		// SetActiveChannel stores the active channel id.
		SetActiveChannel(ctx context.Context, channelID string) error
	}

	// PlayRepo defines the play counter operations.
	PlayRepo interface {
		// GetPlays returns the play records of all videos.
		GetPlays(ctx context.Context) (map[string]model.PlayRecord, error)
		// BumpPlay increments the play counter of a video and stamps its last play time.
		BumpPlay(ctx context.Context, videoID string, at time.Time) (model.PlayRecord, error)
	}

	// SettingsRepo defines the user configuration and tag taxonomy operations.
	SettingsRepo interface {
		GetSettings(ctx context.Context) (model.Settings, error)
		SaveSettings(ctx context.Context, settings model.Settings) error
		GetTaxonomy(ctx context.Context) (model.Taxonomy, error)
		SaveTaxonomy(ctx context.Context, taxonomy model.Taxonomy) error
		// BackupTaxonomy copies the taxonomy document aside and returns the backup path.
		BackupTaxonomy(ctx context.Context) (string, error)
	}
)

// DatabaseRepo combines the JSON document store with the configured play counter backend.
type DatabaseRepo struct {
	CatalogRepo
	ChannelRepo
	PlayRepo
	SettingsRepo

	docs   *jsonfile.Store
	sqlite *sqlite.SqliteRepo
}

// New opens the JSON documents in c.Dir and the play counter backend.
func New(c *Config, logger *zap.Logger) (*DatabaseRepo, error) {
	if c == nil || c.Dir == "" {
		return nil, model.ErrNoConfiguration
	}
	playsFile := c.Filename
	if c.Type == "sqlite" {
		playsFile = ""
	}
	docs, err := jsonfile.New(&jsonfile.Options{
		Dir:             c.Dir,
		PlaysFile:       playsFile,
		FallbackChannel: c.FallbackChannel,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	d := &DatabaseRepo{
		CatalogRepo:  docs,
		ChannelRepo:  docs,
		PlayRepo:     docs,
		SettingsRepo: docs,
		docs:         docs,
	}

	switch c.Type {
	case "", "json":
	case "sqlite":
		filename := c.Filename
		if filename == "" {
			filename = filepath.Join(c.Dir, "plays.db")
		}
		repo, err := sqlite.New(&sqlite.ConfigFile{Filename: filename}, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		d.PlayRepo = repo
		d.sqlite = repo
	default:
		return nil, fmt.Errorf("unknown database type %q", c.Type)
	}
	return d, nil
}

// Seed creates missing documents with their defaults.
func (d *DatabaseRepo) Seed(ctx context.Context) error {
	return d.docs.Seed(ctx)
}

// StartBackgroundJobs starts the periodic sync of the sqlite play counters, if in use.
func (d *DatabaseRepo) StartBackgroundJobs(ctx context.Context) {
	if d.sqlite != nil {
		d.sqlite.StartBackgroundJobs(ctx)
	}
}

// Close flushes pending play counters.
func (d *DatabaseRepo) Close() error {
	if d.sqlite != nil {
		return d.sqlite.Close()
	}
	return nil
}
