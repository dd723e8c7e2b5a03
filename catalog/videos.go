package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/model"
)

// VideoEdit holds the editable fields of a video. Nil fields are left unchanged.
type VideoEdit struct {
	Title  *string  `json:"title"`
	Tags   []string `json:"tags"`
	Person *string  `json:"personaje"`
	Date   *string  `json:"fecha"`
	Modes  []string `json:"modo"`
}

// CleanTags trims tags and drops empty and duplicate ones, keeping order.
func CleanTags(tags []string) []string {
	clean := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		clean = append(clean, t)
	}
	return clean
}

// EditVideo applies edit to video id. A video file without catalog entry gets
// a new entry, stamped with the creation time of the file.
func (l *Library) EditVideo(ctx context.Context, id string, edit VideoEdit) (model.Video, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return model.Video{}, fmt.Errorf("video id %q: %w", id, ErrInvalidArgument)
	}

	var (
		result model.Video
		found  bool
	)
	path, hasFile := l.VideoFile(id)
	err := l.repo.UpdateCatalog(ctx, func(c model.Catalog) bool {
		var v model.Video
		v, found = c[id]
		if !found {
			if !hasFile {
				return false
			}
			v = model.Video{Title: model.TitleFromID(id), Tags: []string{}}
			if added := fileAdded(path); !added.IsZero() {
				v.Added = &added
			}
		}
		if edit.Title != nil {
			v.Title = strings.TrimSpace(*edit.Title)
		}
		if edit.Tags != nil {
			v.Tags = CleanTags(edit.Tags)
		}
		if edit.Person != nil {
			v.Person = *edit.Person
		}
		if edit.Date != nil {
			v.Date = *edit.Date
		}
		if edit.Modes != nil {
			v.Modes = edit.Modes
		}
		c[id] = v
		v.ID = id
		result = v
		found = true
		return true
	})
	if err != nil {
		return model.Video{}, err
	}
	if !found {
		return model.Video{}, model.ErrNotFound
	}
	l.logger.Info("video edited", zap.String("video", id), zap.Strings("tags", result.Tags))
	l.reindex(ctx)
	return result, nil
}

// DeleteVideo removes the catalog entry and thumbnail of id. With full set, it
// also removes the video file. It returns ErrNotFound when nothing was removed.
func (l *Library) DeleteVideo(ctx context.Context, id string, full bool) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("video id %q: %w", id, ErrInvalidArgument)
	}

	removed := false
	if full {
		if path, ok := l.VideoFile(id); ok {
			if err := os.Remove(path); err != nil {
				return err
			}
			l.logger.Info("video file removed", zap.String("path", path))
			removed = true
		}
	}

	if l.thumbnailDir != "" {
		thumb := filepath.Join(l.thumbnailDir, id+".jpg")
		err := os.Remove(thumb)
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, os.ErrNotExist):
			return err
		}
	}

	err := l.repo.DeleteVideo(ctx, id)
	switch {
	case err == nil:
		removed = true
	case !errors.Is(err, model.ErrNotFound):
		return err
	}

	if !removed {
		return model.ErrNotFound
	}
	l.logger.Info("video deleted", zap.String("video", id), zap.Bool("full", full))
	l.reindex(ctx)
	return nil
}

// reindex rebuilds the search index, logging failures.
func (l *Library) reindex(ctx context.Context) {
	if err := l.BuildSearchIndex(ctx); err != nil {
		l.logger.Error("rebuilding search index", zap.Error(err))
	}
}
