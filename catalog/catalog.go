// Package catalog maintains the video library: it reconciles the video
// directory with the catalog, probes durations, edits and deletes videos,
// maintains the tag taxonomy and provides full-text search.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/djherbis/times"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/catalog/search"
	"github.com/erikbos/tvloop/database"
	"github.com/erikbos/tvloop/database/model"
)

// VideoExtensions are the file extensions recognized as videos.
var VideoExtensions = []string{".mp4", ".webm", ".mov"}

var (
	// ErrInvalidArgument is returned for empty tags, groups or ids.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSearchIndexNotInitialized is returned by Search before the first index build.
	ErrSearchIndexNotInitialized = errors.New("search index not initialized")
	// default number of search results to return.
	searchResultCount = 25
)

// Options configures a Library.
type Options struct {
	Repo database.Repository
	// VideoDir holds the video files.
	VideoDir string
	// ThumbnailDir holds one <id>.jpg thumbnail per video.
	ThumbnailDir string
	// Prober measures durations, nil disables probing.
	Prober Prober
	// ScanInterval is the wait between background syncs.
	ScanInterval time.Duration
	Logger       *zap.Logger
}

// Library manages the catalog against the video directory.
type Library struct {
	repo         database.Repository
	videoDir     string
	thumbnailDir string
	prober       Prober
	scanInterval time.Duration
	logger       *zap.Logger

	mu         sync.RWMutex
	bleveIndex *search.Search
}

// New returns a Library.
func New(o *Options) *Library {
	l := &Library{
		repo:         o.Repo,
		videoDir:     o.VideoDir,
		thumbnailDir: o.ThumbnailDir,
		prober:       o.Prober,
		scanInterval: o.ScanInterval,
		logger:       o.Logger,
	}
	if l.scanInterval == 0 {
		l.scanInterval = 5 * time.Minute
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.Named("catalog")
	return l
}

// NewFile is a video file without catalog entry.
type NewFile struct {
	ID    string    `json:"id"`
	File  string    `json:"file"`
	Added time.Time `json:"agregado"`
}

// Report is the result of comparing the video directory with the catalog.
type Report struct {
	// Valid are catalog entries with a video file.
	Valid model.Catalog `json:"validos"`
	// Ghosts are catalog entries without a video file.
	Ghosts model.Catalog `json:"fantasmas"`
	// New are video files without catalog entry, sorted by id.
	New []NewFile `json:"nuevos"`
	// TotalDuration of the catalog, formatted as "Hh Mm" or "Mm".
	TotalDuration string `json:"total"`
}

// Init syncs the library once and builds the search index.
func (l *Library) Init(ctx context.Context) {
	l.logger.Info("initializing library", zap.String("dir", l.videoDir))
	if _, err := l.Refresh(ctx); err != nil {
		l.logger.Error("library sync", zap.Error(err))
	}
}

// Background keeps the library in sync until ctx is done.
func (l *Library) Background(ctx context.Context) {
	ticker := time.NewTicker(l.scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.Refresh(ctx); err != nil {
				l.logger.Error("library sync", zap.Error(err))
			}
		}
	}
}

// Refresh probes missing durations, rebuilds the search index and returns the sync report.
func (l *Library) Refresh(ctx context.Context) (Report, error) {
	if _, err := l.EnsureDurations(ctx); err != nil {
		return Report{}, err
	}
	if err := l.BuildSearchIndex(ctx); err != nil {
		return Report{}, err
	}
	return l.Sync(ctx)
}

// videoFiles maps video id to file name for every video in the video directory.
func (l *Library) videoFiles() (map[string]string, error) {
	entries, err := os.ReadDir(l.videoDir)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	files := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range VideoExtensions {
			if ext == want {
				files[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = e.Name()
			}
		}
	}
	return files, nil
}

// VideoFile returns the path of the video file of id.
func (l *Library) VideoFile(id string) (string, bool) {
	for _, ext := range VideoExtensions {
		p := filepath.Join(l.videoDir, id+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// fileAdded returns the creation time of a file, or its modification time
// where the filesystem does not record birth times.
func fileAdded(path string) time.Time {
	ts, err := times.Stat(path)
	if err != nil {
		return time.Time{}
	}
	if ts.HasBirthTime() {
		return ts.BirthTime().UTC()
	}
	return ts.ModTime().UTC()
}

// Sync compares the video directory with the catalog.
func (l *Library) Sync(ctx context.Context) (Report, error) {
	files, err := l.videoFiles()
	if err != nil {
		return Report{}, err
	}
	catalog, err := l.repo.GetCatalog(ctx)
	if err != nil {
		return Report{}, err
	}

	r := Report{
		Valid:         model.Catalog{},
		Ghosts:        model.Catalog{},
		New:           []NewFile{},
		TotalDuration: TotalDuration(catalog),
	}
	for id, v := range catalog {
		if _, ok := files[id]; ok {
			r.Valid[id] = v
		} else {
			r.Ghosts[id] = v
		}
	}
	for id, name := range files {
		if _, ok := catalog[id]; ok {
			continue
		}
		r.New = append(r.New, NewFile{ID: id, File: name, Added: fileAdded(filepath.Join(l.videoDir, name))})
	}
	sort.Slice(r.New, func(i, j int) bool { return r.New[i].ID < r.New[j].ID })

	l.logger.Info("library synced",
		zap.Int("valid", len(r.Valid)),
		zap.Int("ghosts", len(r.Ghosts)),
		zap.Int("new", len(r.New)),
		zap.String("total", r.TotalDuration))
	return r, nil
}

// EnsureDurations probes the duration of every catalog video that has none
// and a file on disk. It returns the number of videos updated.
func (l *Library) EnsureDurations(ctx context.Context) (int, error) {
	if l.prober == nil {
		return 0, nil
	}
	catalog, err := l.repo.GetCatalog(ctx)
	if err != nil {
		return 0, err
	}

	durations := make(map[string]float64)
	for id, v := range catalog {
		if v.Duration > 0 {
			continue
		}
		path, ok := l.VideoFile(id)
		if !ok {
			continue
		}
		d, err := l.prober.Duration(ctx, path)
		if err != nil {
			l.logger.Warn("probing duration", zap.String("video", id), zap.Error(err))
			continue
		}
		durations[id] = d
	}
	if len(durations) == 0 {
		return 0, nil
	}

	err = l.repo.UpdateCatalog(ctx, func(c model.Catalog) bool {
		for id, d := range durations {
			if v, ok := c[id]; ok {
				v.Duration = d
				c[id] = v
			}
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("durations updated", zap.Int("videos", len(durations)))
	return len(durations), nil
}

// TotalDuration formats the summed duration of the catalog as "Hh Mm", or "Mm" under an hour.
func TotalDuration(c model.Catalog) string {
	var total float64
	for _, v := range c {
		total += v.Duration
	}
	hours := int(total) / 3600
	minutes := (int(total) % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// BuildSearchIndex rebuilds the search index from the catalog.
func (l *Library) BuildSearchIndex(ctx context.Context) error {
	catalog, err := l.repo.GetCatalog(ctx)
	if err != nil {
		return err
	}

	index, err := search.New()
	if err != nil {
		return err
	}
	docs := make([]search.Document, 0, len(catalog))
	for id, v := range catalog {
		docs = append(docs, makeSearchDocument(id, v))
	}
	if err := index.Index(ctx, docs); err != nil {
		return err
	}

	l.mu.Lock()
	old := l.bleveIndex
	l.bleveIndex = index
	l.mu.Unlock()
	if old != nil {
		old.Close()
	}
	l.logger.Debug("search index built", zap.Int("videos", len(docs)))
	return nil
}

// Search returns the ids of the videos matching term, best match first.
func (l *Library) Search(ctx context.Context, term string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.bleveIndex == nil {
		return nil, ErrSearchIndexNotInitialized
	}
	return l.bleveIndex.Search(ctx, term, searchResultCount)
}

// makeSearchDocument creates a search document from a video.
// Strings need to be lowercase as all search matching is done in lower case.
func makeSearchDocument(id string, v model.Video) search.Document {
	v.ID = id
	title := strings.ToLower(v.DisplayTitle())
	tags := make([]string, 0, len(v.Tags))
	for _, t := range v.Tags {
		tags = append(tags, strings.ToLower(t))
	}
	return search.Document{
		ID:         id,
		Title:      title,
		TitleExact: title,
		Tags:       tags,
		Person:     strings.ToLower(v.Person),
	}
}
