// Package jsonfile stores the catalog, channels, play counters and settings as
// JSON documents in a content directory. Every write is atomic.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/model"
)

// Document names in the content directory.
const (
	CatalogFile       = "metadata.json"
	ChannelsFile      = "canales.json"
	ActiveChannelFile = "canal_activo.json"
	TaxonomyFile      = "tags.json"
	SettingsFile      = "configuracion.json"
	PlaysFile         = "plays.json"
)

// Options configures a Store.
type Options struct {
	// Dir holds the documents.
	Dir string
	// PlaysFile overrides the location of the play counter document.
	PlaysFile string
	// FallbackChannel is returned when no active channel is stored.
	FallbackChannel string
	Logger          *zap.Logger
}

// Store implements the document repositories on top of JSON files.
type Store struct {
	dir       string
	playsFile string
	fallback  string
	logger    *zap.Logger
	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

type activeChannelDoc struct {
	ChannelID string `json:"canal_id"`
}

// New returns a Store for the documents in o.Dir.
func New(o *Options) (*Store, error) {
	if o == nil || o.Dir == "" {
		return nil, model.ErrNoConfiguration
	}
	if err := os.MkdirAll(o.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("content dir: %w", err)
	}
	s := &Store{
		dir:       o.Dir,
		playsFile: o.PlaysFile,
		fallback:  o.FallbackChannel,
		logger:    o.Logger,
	}
	if s.playsFile == "" {
		s.playsFile = filepath.Join(o.Dir, PlaysFile)
	}
	if s.fallback == "" {
		s.fallback = "base"
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Path returns the location of a named document.
func (s *Store) Path(name string) string {
	if name == PlaysFile {
		return s.playsFile
	}
	return filepath.Join(s.dir, name)
}

// load reads a document. A missing document yields def, a corrupt one
// yields def and a warning.
func load[T any](s *Store, name string, def T) (T, error) {
	var v T
	err := ReadJSON(s.Path(name), &v)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, fs.ErrNotExist):
		return def, nil
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("unreadable document, using default", zap.String("document", name), zap.Error(err))
		return def, nil
	}
	return def, err
}

func (s *Store) save(name string, v any) error {
	return WriteJSON(s.Path(name), v)
}

func (s *Store) exists(name string) bool {
	st, err := os.Stat(s.Path(name))
	return err == nil && st.Size() > 0
}

// GetCatalog returns all videos.
func (s *Store) GetCatalog(ctx context.Context) (model.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadCatalog()
}

func (s *Store) loadCatalog() (model.Catalog, error) {
	catalog, err := load(s, CatalogFile, model.Catalog{})
	if err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = model.Catalog{}
	}
	for id, v := range catalog {
		v.ID = id
		catalog[id] = v
	}
	return catalog, nil
}

// GetVideo returns one video.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*model.Video, error) {
	catalog, err := s.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}
	v, ok := catalog[videoID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &v, nil
}

// SaveVideo inserts or replaces a video.
func (s *Store) SaveVideo(ctx context.Context, video model.Video) error {
	if video.ID == "" {
		return errors.New("video id not set")
	}
	return s.UpdateCatalog(ctx, func(c model.Catalog) bool {
		c[video.ID] = video
		return true
	})
}

// DeleteVideo removes a video from the catalog.
func (s *Store) DeleteVideo(ctx context.Context, videoID string) error {
	found := false
	err := s.UpdateCatalog(ctx, func(c model.Catalog) bool {
		if _, found = c[videoID]; found {
			delete(c, videoID)
		}
		return found
	})
	if err != nil {
		return err
	}
	if !found {
		return model.ErrNotFound
	}
	return nil
}

// UpdateCatalog applies fn to the catalog under the store lock and writes it back if fn returns true.
func (s *Store) UpdateCatalog(ctx context.Context, fn func(model.Catalog) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, err := s.loadCatalog()
	if err != nil {
		return err
	}
	if !fn(catalog) {
		return nil
	}
	return s.save(CatalogFile, catalog)
}

// GetChannels returns all channels.
func (s *Store) GetChannels(ctx context.Context) (model.Channels, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadChannels()
}

func (s *Store) loadChannels() (model.Channels, error) {
	channels, err := load(s, ChannelsFile, model.Channels{})
	if err != nil {
		return nil, err
	}
	if channels == nil {
		channels = model.Channels{}
	}
	for id, c := range channels {
		c.ID = id
		channels[id] = c
	}
	return channels, nil
}

// GetChannel returns one channel.
func (s *Store) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	channels, err := s.GetChannels(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := channels[channelID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &c, nil
}

// SaveChannel stores a channel. An empty id gets the next free numeric id.
func (s *Store) SaveChannel(ctx context.Context, channel model.Channel) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := s.loadChannels()
	if err != nil {
		return "", err
	}
	if channel.ID == "" {
		channel.ID = channels.NextID()
	}
	channels[channel.ID] = channel
	if err := s.save(ChannelsFile, channels); err != nil {
		return "", err
	}
	return channel.ID, nil
}

// DeleteChannel removes a channel.
func (s *Store) DeleteChannel(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels, err := s.loadChannels()
	if err != nil {
		return err
	}
	if _, ok := channels[channelID]; !ok {
		return model.ErrNotFound
	}
	delete(channels, channelID)
	return s.save(ChannelsFile, channels)
}

// GetActiveChannel returns the stored active channel id, or the fallback id when none is stored.
func (s *Store) GetActiveChannel(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := load(s, ActiveChannelFile, activeChannelDoc{})
	if err != nil {
		return "", err
	}
	if doc.ChannelID == "" {
		return s.fallback, nil
	}
	return doc.ChannelID, nil
}

// SetActiveChannel stores the active channel id.
func (s *Store) SetActiveChannel(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ActiveChannelFile, activeChannelDoc{ChannelID: channelID})
}

// GetPlays returns the play records of all videos.
func (s *Store) GetPlays(ctx context.Context) (map[string]model.PlayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadPlays()
}

func (s *Store) loadPlays() (map[string]model.PlayRecord, error) {
	plays, err := load(s, PlaysFile, map[string]model.PlayRecord{})
	if err != nil {
		return nil, err
	}
	if plays == nil {
		plays = map[string]model.PlayRecord{}
	}
	return plays, nil
}

// BumpPlay increments the play counter of videoID and sets its last play time to at.
// Unknown ids get a new record.
func (s *Store) BumpPlay(ctx context.Context, videoID string, at time.Time) (model.PlayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plays, err := s.loadPlays()
	if err != nil {
		return model.PlayRecord{}, err
	}
	rec := plays[videoID]
	rec.Plays++
	ts := at.UTC()
	rec.LastPlayed = &ts
	plays[videoID] = rec

	if err := s.save(PlaysFile, plays); err != nil {
		return model.PlayRecord{}, err
	}
	return rec, nil
}

// GetSettings returns the configuration document.
func (s *Store) GetSettings(ctx context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return load(s, SettingsFile, defaultSettings())
}

// SaveSettings replaces the configuration document.
func (s *Store) SaveSettings(ctx context.Context, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(SettingsFile, normalizeSettings(settings))
}

// GetTaxonomy returns the tag groups.
func (s *Store) GetTaxonomy(ctx context.Context) (model.Taxonomy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taxonomy, err := load(s, TaxonomyFile, model.Taxonomy{})
	if err != nil {
		return nil, err
	}
	if taxonomy == nil {
		taxonomy = model.Taxonomy{}
	}
	return taxonomy, nil
}

// SaveTaxonomy replaces the tag groups.
func (s *Store) SaveTaxonomy(ctx context.Context, taxonomy model.Taxonomy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(TaxonomyFile, taxonomy)
}

// BackupTaxonomy copies the taxonomy document to a timestamped sibling and returns its path.
func (s *Store) BackupTaxonomy(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(TaxonomyFile))
	if err != nil {
		return "", err
	}
	backup := filepath.Join(s.dir, fmt.Sprintf("tags.backup.%s.json", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", err
	}
	return backup, nil
}

// Seed writes the default document for every missing document, then makes sure
// the fallback channel has tags to choose from.
func (s *Store) Seed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defaults := []struct {
		name string
		doc  any
	}{
		{TaxonomyFile, defaultTaxonomy()},
		{ChannelsFile, defaultChannels()},
		{CatalogFile, model.Catalog{}},
		{ActiveChannelFile, activeChannelDoc{ChannelID: "1"}},
		{SettingsFile, defaultSettings()},
	}
	for _, d := range defaults {
		if s.exists(d.name) {
			continue
		}
		s.logger.Info("seeding document", zap.String("document", d.name))
		if err := s.save(d.name, d.doc); err != nil {
			return err
		}
	}
	return s.bootstrapSettings()
}

// bootstrapSettings fills empty fallback tag lists with every taxonomy tag.
func (s *Store) bootstrapSettings() error {
	settings, err := load(s, SettingsFile, defaultSettings())
	if err != nil {
		return err
	}
	if len(settings.IncludedTags) > 0 {
		return nil
	}
	taxonomy, err := load(s, TaxonomyFile, model.Taxonomy{})
	if err != nil {
		return err
	}
	all := make([]string, 0)
	for tag := range taxonomy.AllTags() {
		all = append(all, tag)
	}
	if len(all) == 0 {
		return nil
	}
	sort.Strings(all)
	settings.IncludedTags = all
	if len(settings.PriorityTags) == 0 {
		settings.PriorityTags = append([]string(nil), all...)
	}
	s.logger.Info("bootstrapped fallback channel tags", zap.Int("tags", len(all)))
	return s.save(SettingsFile, settings)
}

func defaultSettings() model.Settings {
	return model.Settings{PriorityTags: []string{}, IncludedTags: []string{}}
}

func normalizeSettings(settings model.Settings) model.Settings {
	if settings.PriorityTags == nil {
		settings.PriorityTags = []string{}
	}
	if settings.IncludedTags == nil {
		settings.IncludedTags = []string{}
	}
	return settings
}

func defaultTaxonomy() model.Taxonomy {
	return model.Taxonomy{
		"Personajes": {Color: "#facc15", Tags: []string{"Mirtha", "Franchella", "Menem", "Cristina", "Milei"}},
		"Temas":      {Color: "#3b82f6", Tags: []string{"politica", "humor", "clasicos", "virales", "efemerides", "publicidad"}},
		"Otros":      {Color: "#ec4899", Tags: []string{"Simuladores", "Simpsons", "familia", "personal", "milagros", "menemismo", "test"}},
	}
}

func defaultChannels() model.Channels {
	return model.Channels{
		"Canal de Prueba": {
			Name:         "Test",
			Description:  "Canal de prueba",
			PriorityTags: []string{"test"},
			Icon:         "mate.png",
		},
	}
}
