package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/erikbos/tvloop/catalog"
	"github.com/erikbos/tvloop/database/model"
)

// /api/videos
//
// videosHandler returns the catalog
func (a *API) videosHandler(w http.ResponseWriter, r *http.Request) {
	c, err := a.repo.GetCatalog(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(c, w)
}

// /api/videos/search?q=
//
// searchHandler runs a full-text search over titles, tags and people
func (a *API) searchHandler(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	ids, err := a.library.Search(r.Context(), term)
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	c, err := a.repo.GetCatalog(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}

	response := searchResponse{IDs: []string{}, Videos: []videoResponse{}}
	for _, id := range ids {
		// the index can trail the catalog by one rebuild.
		v, ok := c[id]
		if !ok {
			continue
		}
		response.IDs = append(response.IDs, id)
		response.Videos = append(response.Videos, videoResponse{ID: id, Video: v})
	}
	serveJSON(response, w)
}

// /api/videos/{video}
//
// editVideoHandler updates title, tags and display metadata of a video
func (a *API) editVideoHandler(w http.ResponseWriter, r *http.Request) {
	var edit catalog.VideoEdit
	if !decodeJSON(w, r, &edit) {
		return
	}
	id := mux.Vars(r)["video"]
	v, err := a.library.EditVideo(r.Context(), id, edit)
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(videoResponse{ID: id, Video: v}, w)
}

// /api/videos/{video}?full=1
//
// deleteVideoHandler removes a video's metadata and thumbnail, and with full set also the file
func (a *API) deleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	id := mux.Vars(r)["video"]
	if err := a.library.DeleteVideo(r.Context(), id, full); err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(deleteVideoResponse{OK: true, VideoID: id, Full: full}, w)
}

// /api/library
//
// libraryHandler syncs the library and returns valid, ghost and new videos
func (a *API) libraryHandler(w http.ResponseWriter, r *http.Request) {
	report, err := a.library.Refresh(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(report, w)
}

// /api/config
//
// configHandler returns or stores the tag configuration of the fallback channel
func (a *API) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var request model.Settings
		if !decodeJSON(w, r, &request) {
			return
		}
		settings, err := a.library.SaveSettings(r.Context(), request.PriorityTags, request.IncludedTags)
		if err != nil {
			a.serveError(w, r, err)
			return
		}
		a.scheduler.ResetChannel(a.fallback)
		serveJSON(settings, w)
		return
	}

	settings, err := a.library.CleanSettings(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(settings, w)
}

// /api/tags
//
// tagsHandler returns the tag taxonomy
func (a *API) tagsHandler(w http.ResponseWriter, r *http.Request) {
	taxonomy, err := a.repo.GetTaxonomy(r.Context())
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(taxonomy, w)
}

// /api/tags
//
// addTagHandler adds a tag to a group
func (a *API) addTagHandler(w http.ResponseWriter, r *http.Request) {
	var request tagRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	taxonomy, err := a.library.AddTag(r.Context(), request.Group, request.Tag)
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(taxonomy, w)
}

// /api/tags/{group}/{tag}
//
// deleteTagHandler removes a tag from its group, the catalog and the configuration
func (a *API) deleteTagHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	taxonomy, err := a.library.DeleteTag(r.Context(), vars["group"], vars["tag"])
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(taxonomy, w)
}

// /api/tag_groups
//
// addGroupHandler creates an empty tag group
func (a *API) addGroupHandler(w http.ResponseWriter, r *http.Request) {
	var request tagRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	taxonomy, err := a.library.AddGroup(r.Context(), request.Group, request.Color)
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(taxonomy, w)
}

// /api/tag_groups/{group}
//
// deleteGroupHandler removes a group and all its tags
func (a *API) deleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	taxonomy, err := a.library.DeleteGroup(r.Context(), mux.Vars(r)["group"])
	if err != nil {
		a.serveError(w, r, err)
		return
	}
	serveJSON(taxonomy, w)
}

type videoResponse struct {
	ID string `json:"id"`
	model.Video
}

type searchResponse struct {
	IDs    []string        `json:"ids"`
	Videos []videoResponse `json:"videos"`
}

type deleteVideoResponse struct {
	OK      bool   `json:"ok"`
	VideoID string `json:"video_id"`
	Full    bool   `json:"full"`
}

type tagRequest struct {
	Group string `json:"group"`
	Tag   string `json:"tag"`
	Color string `json:"color"`
}
