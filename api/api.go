// Package api serves the JSON API used by the playback frontend and the
// admin pages, plus the thumbnail and video files.
package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/catalog"
	"github.com/erikbos/tvloop/database"
	"github.com/erikbos/tvloop/mailbox"
	"github.com/erikbos/tvloop/scheduler"
	"github.com/erikbos/tvloop/thumbnail"
)

type Options struct {
	Repo      database.Repository
	Scheduler *scheduler.Scheduler
	Library   *catalog.Library
	Mailbox   *mailbox.Mailbox
	// Thumbnails serves /thumbnails, nil disables the route.
	Thumbnails *thumbnail.Resizer
	// VideoDir is served under /videos.
	VideoDir string
	// FallbackChannel is the id of the synthetic channel, always accepted as active channel.
	FallbackChannel string
	Logger          *zap.Logger
}

type API struct {
	repo       database.Repository
	scheduler  *scheduler.Scheduler
	library    *catalog.Library
	mailbox    *mailbox.Mailbox
	thumbnails *thumbnail.Resizer
	videoDir   string
	fallback   string
	logger     *zap.Logger

	// one-shot signal consumers, one per endpoint.
	reload     *mailbox.Cursor
	menuToggle *mailbox.Cursor
	menuNav    *mailbox.Cursor
	menuSelect *mailbox.Cursor
}

func New(o *Options) *API {
	a := &API{
		repo:       o.Repo,
		scheduler:  o.Scheduler,
		library:    o.Library,
		mailbox:    o.Mailbox,
		thumbnails: o.Thumbnails,
		videoDir:   o.VideoDir,
		fallback:   o.FallbackChannel,
		logger:     o.Logger,
	}
	if a.fallback == "" {
		a.fallback = "base"
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.Named("api")

	a.reload = a.mailbox.Cursor(mailbox.Reload)
	a.menuToggle = a.mailbox.Cursor(mailbox.MenuToggle)
	a.menuNav = a.mailbox.Cursor(mailbox.MenuNav)
	a.menuSelect = a.mailbox.Cursor(mailbox.MenuSelect)
	// signals posted before we started are stale.
	for _, c := range []*mailbox.Cursor{a.reload, a.menuToggle, a.menuNav, a.menuSelect} {
		if err := c.Skip(); err != nil {
			a.logger.Warn("skipping stale signal", zap.Error(err))
		}
	}
	return a
}

func (a *API) RegisterHandlers(r *mux.Router) {
	gzip := func(handler http.HandlerFunc) http.Handler {
		return handlers.CompressHandler(handler)
	}

	r.HandleFunc("/health", a.healthHandler)

	s := r.PathPrefix("/api/").Subrouter()

	// playback
	s.HandleFunc("/next_video", a.nextVideoHandler).Methods("GET")
	s.HandleFunc("/played", a.playedHandler).Methods("POST")
	s.HandleFunc("/channels", a.channelsHandler).Methods("GET")
	s.HandleFunc("/channels", a.saveChannelHandler).Methods("POST")
	s.HandleFunc("/channels/{channel}", a.deleteChannelHandler).Methods("DELETE")
	s.HandleFunc("/active_channel", a.activeChannelHandler).Methods("POST")

	// signals and shared state
	s.HandleFunc("/should_reload", a.shouldReloadHandler).Methods("GET")
	s.HandleFunc("/volume", a.volumeHandler).Methods("GET", "POST")
	s.HandleFunc("/volume_ping", a.volumePingHandler).Methods("GET")
	s.HandleFunc("/menu_ping", a.menuPingHandler).Methods("GET")
	s.HandleFunc("/menu_state", a.menuStateHandler).Methods("GET", "POST")
	s.HandleFunc("/menu_nav", a.menuNavHandler).Methods("GET")
	s.HandleFunc("/menu_select", a.menuSelectHandler).Methods("GET")
	s.HandleFunc("/ui_prefs", a.uiPrefsHandler).Methods("GET", "POST")

	// library admin
	s.Handle("/videos", gzip(a.videosHandler)).Methods("GET")
	s.Handle("/videos/search", gzip(a.searchHandler)).Methods("GET")
	s.HandleFunc("/videos/{video}", a.editVideoHandler).Methods("PUT")
	s.HandleFunc("/videos/{video}", a.deleteVideoHandler).Methods("DELETE")
	s.Handle("/library", gzip(a.libraryHandler)).Methods("GET")
	s.HandleFunc("/config", a.configHandler).Methods("GET", "POST")
	s.Handle("/tags", gzip(a.tagsHandler)).Methods("GET")
	s.HandleFunc("/tags", a.addTagHandler).Methods("POST")
	s.HandleFunc("/tags/{group}/{tag}", a.deleteTagHandler).Methods("DELETE")
	s.HandleFunc("/tag_groups", a.addGroupHandler).Methods("POST")
	s.HandleFunc("/tag_groups/{group}", a.deleteGroupHandler).Methods("DELETE")

	// files
	if a.thumbnails != nil {
		r.HandleFunc("/thumbnails/{file}", a.thumbnailHandler).Methods("GET", "HEAD")
	}
	if a.videoDir != "" {
		r.PathPrefix("/videos/").Handler(http.StripPrefix("/videos/", http.FileServer(http.Dir(a.videoDir))))
	}
}

// /health
//
// healthHandler returns health status
func (a *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("cache-control", "no-cache, no-store")
	serveJSON(map[string]string{"status": "ok"}, w)
}

// /thumbnails/{file}
//
// thumbnailHandler serves a thumbnail, resized when w, h or q are set
func (a *API) thumbnailHandler(w http.ResponseWriter, r *http.Request) {
	a.thumbnails.ServeFile(w, r, mux.Vars(r)["file"])
}
