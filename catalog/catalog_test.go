package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/erikbos/tvloop/database/jsonfile"
	"github.com/erikbos/tvloop/database/model"
)

type fakeProber map[string]float64

func (f fakeProber) Duration(_ context.Context, path string) (float64, error) {
	d, ok := f[filepath.Base(path)]
	if !ok {
		return 0, errors.New("no such file")
	}
	return d, nil
}

type testLibrary struct {
	*Library
	store    *jsonfile.Store
	videoDir string
	thumbDir string
}

func newTestLibrary(t *testing.T, prober Prober) *testLibrary {
	t.Helper()
	dir := t.TempDir()
	store, err := jsonfile.New(&jsonfile.Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	videoDir := filepath.Join(dir, "videos")
	thumbDir := filepath.Join(dir, "thumbnails")
	for _, d := range []string{videoDir, thumbDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	lib := New(&Options{Repo: store, VideoDir: videoDir, ThumbnailDir: thumbDir, Prober: prober})
	return &testLibrary{Library: lib, store: store, videoDir: videoDir, thumbDir: thumbDir}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t, nil)

	touch(t, filepath.Join(l.videoDir, "kept.mp4"))
	touch(t, filepath.Join(l.videoDir, "fresh.WEBM"))
	touch(t, filepath.Join(l.videoDir, "notes.txt"))
	l.store.SaveVideo(ctx, model.Video{ID: "kept", Duration: 3725})
	l.store.SaveVideo(ctx, model.Video{ID: "lost", Duration: 60})

	r, err := l.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, ok := r.Valid["kept"]; !ok || len(r.Valid) != 1 {
		t.Fatalf("valid = %v", r.Valid)
	}
	if _, ok := r.Ghosts["lost"]; !ok || len(r.Ghosts) != 1 {
		t.Fatalf("ghosts = %v", r.Ghosts)
	}
	if len(r.New) != 1 || r.New[0].ID != "fresh" || r.New[0].File != "fresh.WEBM" || r.New[0].Added.IsZero() {
		t.Fatalf("new = %+v", r.New)
	}
	if r.TotalDuration != "1h 3m" {
		t.Fatalf("total = %q", r.TotalDuration)
	}
}

func TestTotalDuration(t *testing.T) {
	tests := []struct {
		durations []float64
		want      string
	}{
		{nil, "0m"},
		{[]float64{59}, "0m"},
		{[]float64{61, 120}, "3m"},
		{[]float64{3600}, "1h 0m"},
		{[]float64{1800, 1800, 900.5}, "1h 15m"},
	}
	for _, tt := range tests {
		c := model.Catalog{}
		for i, d := range tt.durations {
			c[string(rune('a'+i))] = model.Video{Duration: d}
		}
		if got := TotalDuration(c); got != tt.want {
			t.Errorf("TotalDuration(%v) = %q, want %q", tt.durations, got, tt.want)
		}
	}
}

func TestEnsureDurations(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t, fakeProber{"a.mp4": 42.5, "c.mov": 10})

	touch(t, filepath.Join(l.videoDir, "a.mp4"))
	touch(t, filepath.Join(l.videoDir, "c.mov"))
	l.store.SaveVideo(ctx, model.Video{ID: "a"})
	l.store.SaveVideo(ctx, model.Video{ID: "b"})
	l.store.SaveVideo(ctx, model.Video{ID: "c", Duration: 99})

	n, err := l.EnsureDurations(ctx)
	if err != nil || n != 1 {
		t.Fatalf("EnsureDurations = %d, %v", n, err)
	}
	a, _ := l.store.GetVideo(ctx, "a")
	c, _ := l.store.GetVideo(ctx, "c")
	if a.Duration != 42.5 || c.Duration != 99 {
		t.Fatalf("durations a=%v c=%v", a.Duration, c.Duration)
	}
}

func TestFFProbe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script prober")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 12.75\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	d, err := FFProbe{Command: script}.Duration(context.Background(), "/dev/null")
	if err != nil || d != 12.75 {
		t.Fatalf("Duration = %v, %v", d, err)
	}

	bad := filepath.Join(dir, "broken")
	if err := os.WriteFile(bad, []byte("#!/bin/sh\necho N/A\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := (FFProbe{Command: bad}).Duration(context.Background(), "/dev/null"); err == nil {
		t.Fatal("expected error for unparsable output")
	}
}

func TestEditVideo(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t, nil)
	touch(t, filepath.Join(l.videoDir, "nuevo_video.mp4"))

	v, err := l.EditVideo(ctx, "nuevo_video", VideoEdit{Tags: []string{" humor ", "", "humor", "virales"}})
	if err != nil {
		t.Fatalf("EditVideo: %v", err)
	}
	if v.Title != "nuevo video" || !reflect.DeepEqual(v.Tags, []string{"humor", "virales"}) || v.Added == nil {
		t.Fatalf("unexpected video %+v", v)
	}

	title := "Nuevo"
	v, err = l.EditVideo(ctx, "nuevo_video", VideoEdit{Title: &title})
	if err != nil || v.Title != "Nuevo" || len(v.Tags) != 2 {
		t.Fatalf("partial edit: %+v %v", v, err)
	}

	if _, err := l.EditVideo(ctx, "missing", VideoEdit{Title: &title}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.EditVideo(ctx, "../etc", VideoEdit{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDeleteVideo(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t, nil)
	video := filepath.Join(l.videoDir, "clip.mp4")
	thumb := filepath.Join(l.thumbDir, "clip.jpg")
	touch(t, video)
	touch(t, thumb)
	l.store.SaveVideo(ctx, model.Video{ID: "clip"})

	if err := l.DeleteVideo(ctx, "clip", false); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if _, err := os.Stat(thumb); !os.IsNotExist(err) {
		t.Fatal("thumbnail should be gone")
	}
	if _, err := os.Stat(video); err != nil {
		t.Fatal("video file should remain")
	}

	if err := l.DeleteVideo(ctx, "clip", true); err != nil {
		t.Fatalf("full DeleteVideo: %v", err)
	}
	if _, err := os.Stat(video); !os.IsNotExist(err) {
		t.Fatal("video file should be gone")
	}
	if err := l.DeleteVideo(ctx, "clip", true); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTagAdmin(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t, nil)
	l.store.SaveVideo(ctx, model.Video{ID: "v", Tags: []string{"humor", "Menem", "virales"}})

	if _, err := l.AddTag(ctx, "Temas", "humor"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.AddTag(ctx, "Temas", "virales"); err != nil {
		t.Fatal(err)
	}
	taxonomy, err := l.AddTag(ctx, "Personajes", "Menem")
	if err != nil {
		t.Fatal(err)
	}
	if taxonomy["Personajes"].Color != DefaultGroupColor || len(taxonomy["Temas"].Tags) != 2 {
		t.Fatalf("unexpected taxonomy %+v", taxonomy)
	}
	settings, _ := l.store.GetSettings(ctx)
	if !reflect.DeepEqual(settings.IncludedTags, []string{"humor", "virales", "Menem"}) {
		t.Fatalf("included = %v", settings.IncludedTags)
	}
	if _, err := l.AddTag(ctx, "Temas", "  "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	if _, err := l.DeleteTag(ctx, "Temas", "humor"); err != nil {
		t.Fatal(err)
	}
	v, _ := l.store.GetVideo(ctx, "v")
	if !reflect.DeepEqual(v.Tags, []string{"Menem", "virales"}) {
		t.Fatalf("video tags = %v", v.Tags)
	}
	if _, err := l.DeleteTag(ctx, "Temas", "humor"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := l.DeleteGroup(ctx, "Personajes"); err != nil {
		t.Fatal(err)
	}
	v, _ = l.store.GetVideo(ctx, "v")
	settings, _ = l.store.GetSettings(ctx)
	if !reflect.DeepEqual(v.Tags, []string{"virales"}) || !reflect.DeepEqual(settings.PriorityTags, []string{"virales"}) {
		t.Fatalf("after group delete: video %v, priority %v", v.Tags, settings.PriorityTags)
	}
	backups, _ := filepath.Glob(filepath.Join(filepath.Dir(l.videoDir), "tags.backup.*.json"))
	if len(backups) != 1 {
		t.Fatalf("expected one taxonomy backup, got %v", backups)
	}

	taxonomy, err = l.AddGroup(ctx, "Lugares", "")
	if err != nil || taxonomy["Lugares"].Color != DefaultGroupColor {
		t.Fatalf("AddGroup: %+v %v", taxonomy, err)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t, nil)
	l.store.SaveTaxonomy(ctx, model.Taxonomy{"Temas": {Color: "#fff", Tags: []string{"humor", "politica"}}})

	s, err := l.SaveSettings(ctx, []string{"politica", "virales", "humor"}, []string{"humor", "politica", "gone"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.PriorityTags, []string{"politica", "humor"}) {
		t.Fatalf("priority = %v", s.PriorityTags)
	}

	s, err = l.CleanSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.IncludedTags, []string{"humor", "politica"}) {
		t.Fatalf("included = %v", s.IncludedTags)
	}
}

func TestLibrarySearch(t *testing.T) {
	ctx := context.Background()
	l := newTestLibrary(t, nil)
	if _, err := l.Search(ctx, "x"); !errors.Is(err, ErrSearchIndexNotInitialized) {
		t.Fatalf("expected ErrSearchIndexNotInitialized, got %v", err)
	}
	l.store.SaveVideo(ctx, model.Video{ID: "discurso_cadena", Title: "Discurso en cadena nacional", Tags: []string{"politica"}})
	l.store.SaveVideo(ctx, model.Video{ID: "gol", Title: "Gol de media cancha", Tags: []string{"virales"}})

	if _, err := l.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	ids, err := l.Search(ctx, "discurso")
	if err != nil || len(ids) == 0 || ids[0] != "discurso_cadena" {
		t.Fatalf("Search = %v, %v", ids, err)
	}
}
