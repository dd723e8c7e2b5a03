package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"

	"github.com/erikbos/tvloop/catalog"
	"github.com/erikbos/tvloop/clock"
	"github.com/erikbos/tvloop/database/jsonfile"
	"github.com/erikbos/tvloop/database/model"
	"github.com/erikbos/tvloop/mailbox"
	"github.com/erikbos/tvloop/scheduler"
	"github.com/erikbos/tvloop/thumbnail"
)

type testServer struct {
	router   *mux.Router
	store    *jsonfile.Store
	mailbox  *mailbox.Mailbox
	clock    *clock.Manual
	videoDir string
	thumbDir string
}

func newTestServer(t *testing.T, prepare func(ctx context.Context, s *jsonfile.Store, mb *mailbox.Mailbox)) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := jsonfile.New(&jsonfile.Options{Dir: dir, FallbackChannel: "base"})
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

	clk := clock.NewManual(time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC))
	mb := mailbox.New(&mailbox.Options{Dir: t.TempDir(), Clock: clk})
	if prepare != nil {
		prepare(ctx, store, mb)
	}

	sched := scheduler.New(&scheduler.Options{
		Repo:            store,
		Clock:           clk,
		Rand:            rand.New(rand.NewPCG(3, 4)),
		FallbackChannel: "base",
	})
	lib := catalog.New(&catalog.Options{Repo: store, VideoDir: videoDir, ThumbnailDir: thumbDir})
	lib.Init(ctx)

	a := New(&Options{
		Repo:            store,
		Scheduler:       sched,
		Library:         lib,
		Mailbox:         mb,
		Thumbnails:      thumbnail.New(&thumbnail.Options{Dir: thumbDir}),
		VideoDir:        videoDir,
		FallbackChannel: "base",
	})
	router := mux.NewRouter()
	a.RegisterHandlers(router)
	return &testServer{router: router, store: store, mailbox: mb, clock: clk, videoDir: videoDir, thumbDir: thumbDir}
}

// humorSetup stores two humor videos and an active humor channel with id 1.
func humorSetup(t *testing.T) func(context.Context, *jsonfile.Store, *mailbox.Mailbox) {
	return func(ctx context.Context, s *jsonfile.Store, _ *mailbox.Mailbox) {
		for _, v := range []model.Video{
			{ID: "gol", Title: "Gol de media cancha", Tags: []string{"humor"}, Duration: 60},
			{ID: "discurso", Title: "Discurso", Tags: []string{"humor", "politica"}, Duration: 60},
		} {
			if err := s.SaveVideo(ctx, v); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := s.SaveChannel(ctx, model.Channel{ID: "1", Name: "Humor", PriorityTags: []string{"humor"}}); err != nil {
			t.Fatal(err)
		}
		if err := s.SetActiveChannel(ctx, "1"); err != nil {
			t.Fatal(err)
		}
	}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, want, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec); got["status"] != "ok" {
		t.Fatalf("health = %v", got)
	}
}

func TestNextVideoAndPlayed(t *testing.T) {
	s := newTestServer(t, humorSetup(t))

	rec := s.do(t, http.MethodGet, "/api/next_video", nil)
	expectStatus(t, rec, http.StatusOK)
	sel := decode[scheduler.Selection](t, rec)
	if sel.VideoID == "" || sel.ChannelID != "1" || sel.ChannelName != "Humor" {
		t.Fatalf("unexpected selection %+v", sel)
	}

	rec = s.do(t, http.MethodPost, "/api/played", map[string]string{"video_id": sel.VideoID})
	expectStatus(t, rec, http.StatusOK)
	played := decode[playedResponse](t, rec)
	if !played.OK || played.VideoID != sel.VideoID || played.Plays != 1 || played.LastPlayed == nil {
		t.Fatalf("unexpected played response %+v", played)
	}

	rec = s.do(t, http.MethodPost, "/api/played", map[string]string{})
	expectStatus(t, rec, http.StatusBadRequest)
	if e := decode[HTTPError](t, rec); e.Status != http.StatusBadRequest || e.Type == "" {
		t.Fatalf("unexpected error body %+v", e)
	}
}

func TestNextVideo_NoTagsAndNoVideos(t *testing.T) {
	s := newTestServer(t, func(ctx context.Context, st *jsonfile.Store, _ *mailbox.Mailbox) {
		st.SaveChannel(ctx, model.Channel{ID: "1", Name: "Vacio"})
		st.SaveChannel(ctx, model.Channel{ID: "2", Name: "Raro", PriorityTags: []string{"inexistente"}})
		st.SetActiveChannel(ctx, "1")
	})

	expectStatus(t, s.do(t, http.MethodGet, "/api/next_video", nil), http.StatusBadRequest)

	expectStatus(t, s.do(t, http.MethodPost, "/api/active_channel", map[string]string{"canal_id": "2"}), http.StatusOK)
	rec := s.do(t, http.MethodGet, "/api/next_video", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[noVideosResponse](t, rec); !got.NoVideos || got.ChannelID != "2" {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestChannels(t *testing.T) {
	s := newTestServer(t, humorSetup(t))

	rec := s.do(t, http.MethodPost, "/api/channels", map[string]any{"nombre": "Noticias", "tags_prioridad": []string{"politica"}})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[okResponse](t, rec); got.ChannelID != "2" {
		t.Fatalf("new channel id = %q, want 2", got.ChannelID)
	}
	expectStatus(t, s.do(t, http.MethodPost, "/api/channels", map[string]any{"nombre": " "}), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodPost, "/api/channels", map[string]any{"id": "base", "nombre": "x"}), http.StatusBadRequest)

	rec = s.do(t, http.MethodGet, "/api/channels", nil)
	expectStatus(t, rec, http.StatusOK)
	list := decode[channelsResponse](t, rec)
	want := []channelItem{{ID: "1", Name: "Humor", Icon: defaultChannelIcon}, {ID: "2", Name: "Noticias", Icon: defaultChannelIcon}}
	if !reflect.DeepEqual(list.Channels, want) || list.ActiveName != "Humor" {
		t.Fatalf("unexpected channel list %+v", list)
	}

	expectStatus(t, s.do(t, http.MethodDelete, "/api/channels/2", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodDelete, "/api/channels/2", nil), http.StatusNotFound)
}

func TestActiveChannel(t *testing.T) {
	s := newTestServer(t, humorSetup(t))

	expectStatus(t, s.do(t, http.MethodPost, "/api/active_channel", map[string]string{}), http.StatusBadRequest)
	expectStatus(t, s.do(t, http.MethodPost, "/api/active_channel", map[string]string{"canal_id": "99"}), http.StatusNotFound)
	expectStatus(t, s.do(t, http.MethodPost, "/api/active_channel", map[string]string{"canal_id": "base"}), http.StatusOK)

	list := decode[channelsResponse](t, s.do(t, http.MethodGet, "/api/channels", nil))
	if list.ActiveID != "base" || list.ActiveName != defaultActiveChannelName {
		t.Fatalf("unexpected active channel %q %q", list.ActiveID, list.ActiveName)
	}
}

func TestShouldReload(t *testing.T) {
	s := newTestServer(t, func(_ context.Context, _ *jsonfile.Store, mb *mailbox.Mailbox) {
		// posted before the server started
		mb.Post(mailbox.Reload, 0)
	})

	check := func(want bool) {
		t.Helper()
		got := decode[shouldReloadResponse](t, s.do(t, http.MethodGet, "/api/should_reload", nil))
		if got.ShouldReload != want {
			t.Fatalf("should_reload = %v, want %v", got.ShouldReload, want)
		}
	}
	check(false)
	s.clock.Advance(time.Second)
	if _, err := s.mailbox.Post(mailbox.Reload, 0); err != nil {
		t.Fatal(err)
	}
	check(true)
	check(false)
}

func TestMenuSignals(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/api/menu_ping", "/api/menu_nav", "/api/menu_select"} {
		if got := decode[pingResponse](t, s.do(t, http.MethodGet, path, nil)); got.Ping {
			t.Fatalf("%s: unexpected ping", path)
		}
	}

	s.mailbox.Post(mailbox.MenuNav, -1)
	s.mailbox.Post(mailbox.MenuToggle, 0)
	s.mailbox.Post(mailbox.MenuSelect, 0)

	nav := decode[pingResponse](t, s.do(t, http.MethodGet, "/api/menu_nav", nil))
	if !nav.Ping || nav.Delta == nil || *nav.Delta != -1 || nav.TS == 0 {
		t.Fatalf("unexpected menu_nav %+v", nav)
	}
	if got := decode[pingResponse](t, s.do(t, http.MethodGet, "/api/menu_nav", nil)); got.Ping {
		t.Fatal("menu_nav delivered twice")
	}
	if got := decode[pingResponse](t, s.do(t, http.MethodGet, "/api/menu_ping", nil)); !got.Ping || got.Delta != nil {
		t.Fatalf("unexpected menu_ping %+v", got)
	}
	if got := decode[pingResponse](t, s.do(t, http.MethodGet, "/api/menu_select", nil)); !got.Ping {
		t.Fatal("expected menu_select ping")
	}

	state := decode[mailbox.MenuState](t, s.do(t, http.MethodGet, "/api/menu_state", nil))
	if state.Open {
		t.Fatal("menu should start closed")
	}
	expectStatus(t, s.do(t, http.MethodPost, "/api/menu_state", map[string]bool{"open": true}), http.StatusOK)
	if state := decode[mailbox.MenuState](t, s.do(t, http.MethodGet, "/api/menu_state", nil)); !state.Open {
		t.Fatal("menu should be open")
	}
}

func TestVolume(t *testing.T) {
	s := newTestServer(t, nil)

	if got := decode[volumeResponse](t, s.do(t, http.MethodGet, "/api/volume", nil)); got.Value != mailbox.DefaultVolume {
		t.Fatalf("default volume = %d", got.Value)
	}
	if got := decode[volumeResponse](t, s.do(t, http.MethodPost, "/api/volume", map[string]int{"valor": 150})); !got.OK || got.Value != 100 {
		t.Fatalf("clamped volume = %+v", got)
	}
	if got := decode[volumeResponse](t, s.do(t, http.MethodGet, "/api/volume", nil)); got.Value != 100 {
		t.Fatalf("stored volume = %d", got.Value)
	}

	if got := decode[pingResponse](t, s.do(t, http.MethodGet, "/api/volume_ping", nil)); got.Ping {
		t.Fatal("setting the volume from the frontend is not a ping")
	}
	if _, err := s.mailbox.AdjustVolume(-5); err != nil {
		t.Fatal(err)
	}
	if got := decode[pingResponse](t, s.do(t, http.MethodGet, "/api/volume_ping", nil)); !got.Ping {
		t.Fatal("expected volume ping")
	}
}

func TestUIPrefs(t *testing.T) {
	s := newTestServer(t, nil)

	if got := decode[uiPrefsResponse](t, s.do(t, http.MethodGet, "/api/ui_prefs", nil)); !got.ShowChannelName {
		t.Fatal("show_channel_name should default to true")
	}
	expectStatus(t, s.do(t, http.MethodPost, "/api/ui_prefs", map[string]bool{"show_channel_name": false}), http.StatusOK)
	if got := decode[uiPrefsResponse](t, s.do(t, http.MethodGet, "/api/ui_prefs", nil)); got.ShowChannelName {
		t.Fatal("show_channel_name should be false")
	}
}

func TestVideos(t *testing.T) {
	s := newTestServer(t, humorSetup(t))

	c := decode[model.Catalog](t, s.do(t, http.MethodGet, "/api/videos", nil))
	if len(c) != 2 {
		t.Fatalf("catalog has %d videos", len(c))
	}

	rec := s.do(t, http.MethodPut, "/api/videos/gol", map[string]any{"title": "Golazo", "tags": []string{"virales", " ", "virales"}})
	expectStatus(t, rec, http.StatusOK)
	v := decode[videoResponse](t, rec)
	if v.ID != "gol" || v.Title != "Golazo" || !reflect.DeepEqual(v.Tags, []string{"virales"}) {
		t.Fatalf("unexpected edit result %+v", v)
	}
	expectStatus(t, s.do(t, http.MethodPut, "/api/videos/missing", map[string]any{"title": "x"}), http.StatusNotFound)

	rec = s.do(t, http.MethodGet, "/api/videos/search?q=golazo", nil)
	expectStatus(t, rec, http.StatusOK)
	found := decode[searchResponse](t, rec)
	if len(found.IDs) == 0 || found.IDs[0] != "gol" || found.Videos[0].Title != "Golazo" {
		t.Fatalf("unexpected search result %+v", found)
	}

	expectStatus(t, s.do(t, http.MethodDelete, "/api/videos/gol", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodDelete, "/api/videos/gol", nil), http.StatusNotFound)
}

func TestLibrary(t *testing.T) {
	s := newTestServer(t, humorSetup(t))
	if err := os.WriteFile(filepath.Join(s.videoDir, "gol.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.videoDir, "nuevo.mov"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := s.do(t, http.MethodGet, "/api/library", nil)
	expectStatus(t, rec, http.StatusOK)
	report := decode[catalog.Report](t, rec)
	if len(report.Valid) != 1 || len(report.Ghosts) != 1 || len(report.New) != 1 || report.New[0].ID != "nuevo" {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.TotalDuration != "2m" {
		t.Fatalf("total = %q", report.TotalDuration)
	}

	rec = s.do(t, http.MethodGet, "/videos/gol.mp4", nil)
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "x" {
		t.Fatalf("video body = %q", rec.Body.String())
	}
}

func TestTagsAndConfig(t *testing.T) {
	s := newTestServer(t, humorSetup(t))

	rec := s.do(t, http.MethodPost, "/api/tags", map[string]string{"group": "Temas", "tag": "humor"})
	expectStatus(t, rec, http.StatusOK)
	if tx := decode[model.Taxonomy](t, rec); tx["Temas"].Color != catalog.DefaultGroupColor {
		t.Fatalf("unexpected taxonomy %+v", tx)
	}
	s.do(t, http.MethodPost, "/api/tags", map[string]string{"group": "Temas", "tag": "politica"})
	expectStatus(t, s.do(t, http.MethodPost, "/api/tag_groups", map[string]string{"group": "Lugares", "color": "#00ff00"}), http.StatusOK)

	tx := decode[model.Taxonomy](t, s.do(t, http.MethodGet, "/api/tags", nil))
	if len(tx) != 2 || tx["Lugares"].Color != "#00ff00" {
		t.Fatalf("unexpected taxonomy %+v", tx)
	}

	rec = s.do(t, http.MethodPost, "/api/config", map[string][]string{
		"tags_prioridad": {"politica", "humor", "otro"},
		"tags_incluidos": {"humor", "politica"},
	})
	expectStatus(t, rec, http.StatusOK)
	settings := decode[model.Settings](t, rec)
	if !reflect.DeepEqual(settings.PriorityTags, []string{"politica", "humor"}) {
		t.Fatalf("priority = %v", settings.PriorityTags)
	}

	expectStatus(t, s.do(t, http.MethodDelete, "/api/tags/Temas/politica", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodDelete, "/api/tags/Temas/politica", nil), http.StatusNotFound)
	settings = decode[model.Settings](t, s.do(t, http.MethodGet, "/api/config", nil))
	if !reflect.DeepEqual(settings.IncludedTags, []string{"humor"}) {
		t.Fatalf("included = %v", settings.IncludedTags)
	}
	c := decode[model.Catalog](t, s.do(t, http.MethodGet, "/api/videos", nil))
	if !reflect.DeepEqual(c["discurso"].Tags, []string{"humor"}) {
		t.Fatalf("tag not removed from video: %v", c["discurso"].Tags)
	}

	expectStatus(t, s.do(t, http.MethodDelete, "/api/tag_groups/Temas", nil), http.StatusOK)
	expectStatus(t, s.do(t, http.MethodDelete, "/api/tag_groups/Temas", nil), http.StatusNotFound)
}

func TestThumbnails(t *testing.T) {
	s := newTestServer(t, nil)
	if err := imaging.Save(imaging.New(32, 16, color.NRGBA{B: 255, A: 255}), filepath.Join(s.thumbDir, "gol.jpg")); err != nil {
		t.Fatal(err)
	}

	rec := s.do(t, http.MethodGet, "/thumbnails/gol.jpg?w=16", nil)
	expectStatus(t, rec, http.StatusOK)
	img, err := imaging.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
		t.Fatalf("thumbnail size %v", img.Bounds())
	}
	expectStatus(t, s.do(t, http.MethodGet, "/thumbnails/none.jpg", nil), http.StatusNotFound)
}
