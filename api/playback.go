package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/model"
	"github.com/erikbos/tvloop/scheduler"
)

const (
	defaultChannelIcon       = "📺"
	defaultActiveChannelName = "Canal Base"
)

// /api/next_video
//
// nextVideoHandler returns the next video of the active channel
func (a *API) nextVideoHandler(w http.ResponseWriter, r *http.Request) {
	result, err := a.scheduler.Next(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	switch result.Status {
	case scheduler.StatusCooldown:
		serveJSON(cooldownResponse{Cooldown: true, ChannelID: result.ChannelID}, w)
	case scheduler.StatusEmpty:
		serveJSON(noVideosResponse{NoVideos: true, ChannelID: result.ChannelID}, w)
	default:
		serveJSON(result.Selection, w)
	}
}

// /api/played
//
// playedHandler confirms the playback of a video
func (a *API) playedHandler(w http.ResponseWriter, r *http.Request) {
	var request playedRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.VideoID == "" {
		apierror(w, "missing video_id", http.StatusBadRequest)
		return
	}
	rec, err := a.scheduler.ConfirmPlayed(r.Context(), request.VideoID)
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(playedResponse{
		OK:         true,
		VideoID:    request.VideoID,
		Plays:      rec.Plays,
		LastPlayed: rec.LastPlayed,
	}, w)
}

// /api/channels
//
// channelsHandler returns all channels and the name of the active one
func (a *API) channelsHandler(w http.ResponseWriter, r *http.Request) {
	channels, err := a.repo.GetChannels(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	activeID, err := a.repo.GetActiveChannel(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}

	response := channelsResponse{
		Channels:   make([]channelItem, 0, len(channels)),
		ActiveID:   activeID,
		ActiveName: defaultActiveChannelName,
	}
	for _, id := range channels.SortedIDs() {
		c := channels[id]
		item := channelItem{ID: id, Name: c.DisplayName(), Icon: c.Icon}
		if item.Icon == "" {
			item.Icon = defaultChannelIcon
		}
		response.Channels = append(response.Channels, item)
	}
	if c, ok := channels[activeID]; ok {
		response.ActiveName = c.DisplayName()
	}
	serveJSON(response, w)
}

// /api/channels
//
// saveChannelHandler creates or replaces a channel
func (a *API) saveChannelHandler(w http.ResponseWriter, r *http.Request) {
	var request channelRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	channel := request.Channel
	channel.ID = strings.TrimSpace(request.ID)
	channel.Name = strings.TrimSpace(channel.Name)
	if channel.Name == "" {
		apierror(w, "missing nombre", http.StatusBadRequest)
		return
	}
	if channel.ID == a.fallback {
		apierror(w, "channel id is reserved", http.StatusBadRequest)
		return
	}
	id, err := a.repo.SaveChannel(r.Context(), channel)
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	// tag changes invalidate the rotation.
	a.scheduler.ResetChannel(id)
	a.logger.Info("channel saved", zap.String("channel", id), zap.String("name", channel.Name))
	serveJSON(okResponse{OK: true, ChannelID: id}, w)
}

// /api/channels/{channel}
//
// deleteChannelHandler removes a channel
func (a *API) deleteChannelHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["channel"]
	if err := a.repo.DeleteChannel(r.Context(), id); err != nil {
		a.serveError(w, r, err)
		return
	}
	a.scheduler.ResetChannel(id)
	a.logger.Info("channel deleted", zap.String("channel", id))
	serveJSON(okResponse{OK: true, ChannelID: id}, w)
}

// /api/active_channel
//
// activeChannelHandler changes the active channel
func (a *API) activeChannelHandler(w http.ResponseWriter, r *http.Request) {
	var request activeChannelRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if request.ChannelID == "" {
		apierror(w, "missing canal_id", http.StatusBadRequest)
		return
	}
	if request.ChannelID != a.fallback {
		if _, err := a.repo.GetChannel(r.Context(), request.ChannelID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				apierror(w, "unknown channel", http.StatusNotFound)
				return
			}
			a.serveError(w, r, err)
			return
		}
	}
	if err := a.repo.SetActiveChannel(r.Context(), request.ChannelID); err != nil {
		a.serveError(w, r, err)
		return
	}
	a.logger.Info("active channel set", zap.String("channel", request.ChannelID))
	serveJSON(okResponse{OK: true, ChannelID: request.ChannelID}, w)
}

type cooldownResponse struct {
	Cooldown  bool   `json:"cooldown"`
	ChannelID string `json:"canal_id"`
}

type noVideosResponse struct {
	NoVideos  bool   `json:"no_videos"`
	ChannelID string `json:"canal_id"`
}

type playedRequest struct {
	VideoID string `json:"video_id"`
}

type playedResponse struct {
	OK         bool       `json:"ok"`
	VideoID    string     `json:"video_id"`
	Plays      int        `json:"plays"`
	LastPlayed *time.Time `json:"last_played"`
}

type channelItem struct {
	ID   string `json:"id"`
	Name string `json:"nombre"`
	Icon string `json:"icono"`
}

type channelsResponse struct {
	Channels   []channelItem `json:"canales"`
	ActiveID   string        `json:"canal_activo"`
	ActiveName string        `json:"canal_activo_nombre"`
}

type channelRequest struct {
	ID string `json:"id"`
	model.Channel
}

type activeChannelRequest struct {
	ChannelID string `json:"canal_id"`
}

type okResponse struct {
	OK        bool   `json:"ok"`
	ChannelID string `json:"canal_id,omitempty"`
}
