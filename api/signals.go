package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/mailbox"
)

// /api/should_reload
//
// shouldReloadHandler reports a pending reload trigger, once per trigger
func (a *API) shouldReloadHandler(w http.ResponseWriter, r *http.Request) {
	_, ok, err := a.reload.Consume()
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(shouldReloadResponse{ShouldReload: ok}, w)
}

// /api/volume
//
// volumeHandler returns or sets the volume
func (a *API) volumeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var request volumeRequest
		if !decodeJSON(w, r, &request) {
			return
		}
		value := mailbox.DefaultVolume
		if request.Value != nil {
			value = *request.Value
		}
		v, err := a.mailbox.SetVolume(value)
		if err != nil {
			a.serveError(w, r, err)
			return
		}
		serveJSON(volumeResponse{OK: true, Value: v}, w)
		return
	}

	v, err := a.mailbox.Volume()
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(volumeResponse{Value: v}, w)
}

// /api/volume_ping
//
// volumePingHandler reports whether the volume was changed by the encoder just now
func (a *API) volumePingHandler(w http.ResponseWriter, r *http.Request) {
	recent, err := a.mailbox.VolumeRecent()
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(pingResponse{Ping: recent}, w)
}

// /api/menu_ping
//
// menuPingHandler reports a pending menu toggle, once per toggle
func (a *API) menuPingHandler(w http.ResponseWriter, r *http.Request) {
	a.servePing(w, r, a.menuToggle, false)
}

// /api/menu_nav
//
// menuNavHandler reports a pending menu navigation step, once per step
func (a *API) menuNavHandler(w http.ResponseWriter, r *http.Request) {
	a.servePing(w, r, a.menuNav, true)
}

// /api/menu_select
//
// menuSelectHandler reports a pending menu selection, once per selection
func (a *API) menuSelectHandler(w http.ResponseWriter, r *http.Request) {
	a.servePing(w, r, a.menuSelect, false)
}

func (a *API) servePing(w http.ResponseWriter, r *http.Request, c *mailbox.Cursor, withDelta bool) {
	msg, ok, err := c.Consume()
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	if !ok {
		serveJSON(pingResponse{}, w)
		return
	}
	response := pingResponse{Ping: true, TS: msg.Timestamp}
	if withDelta {
		delta := msg.Delta
		response.Delta = &delta
	}
	serveJSON(response, w)
}

// /api/menu_state
//
// menuStateHandler returns or sets whether the menu is open
func (a *API) menuStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var request mailbox.MenuState
		if !decodeJSON(w, r, &request) {
			return
		}
		if err := a.mailbox.SetMenuOpen(request.Open); err != nil {
			a.serveError(w, r, err)
			return
		}
		a.logger.Debug("menu state", zap.Bool("open", request.Open))
		serveJSON(okResponse{OK: true}, w)
		return
	}

	state, err := a.mailbox.MenuState()
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(state, w)
}

// /api/ui_prefs
//
// uiPrefsHandler returns or sets the frontend preferences
func (a *API) uiPrefsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := a.repo.GetSettings(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}

	if r.Method == http.MethodPost {
		var request uiPrefs
		if !decodeJSON(w, r, &request) {
			return
		}
		show := request.ShowChannelName == nil || *request.ShowChannelName
		settings.ShowChannelName = &show
		if err := a.repo.SaveSettings(r.Context(), settings); err != nil {
			a.serveError(w, r, err)
			return
		}
		serveJSON(uiPrefsResponse{OK: true, ShowChannelName: show}, w)
		return
	}
	serveJSON(uiPrefsResponse{ShowChannelName: settings.ShowName()}, w)
}

type shouldReloadResponse struct {
	ShouldReload bool `json:"should_reload"`
}

type volumeRequest struct {
	Value *int `json:"valor"`
}

type volumeResponse struct {
	OK    bool `json:"ok,omitempty"`
	Value int  `json:"valor"`
}

type pingResponse struct {
	Ping  bool    `json:"ping"`
	Delta *int    `json:"delta,omitempty"`
	TS    float64 `json:"ts,omitempty"`
}

type uiPrefs struct {
	ShowChannelName *bool `json:"show_channel_name"`
}

type uiPrefsResponse struct {
	OK              bool `json:"ok,omitempty"`
	ShowChannelName bool `json:"show_channel_name"`
}
