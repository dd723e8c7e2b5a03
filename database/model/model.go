package model

import (
	"errors"
	"sort"
	"strconv"
	"time"
)

var (
	ErrNoConfiguration = errors.New("database location not set")
	ErrNoDbHandle      = errors.New("db connection not available")
	ErrNotFound        = errors.New("not found")
)

// Video is a catalog entry. The id is the file name without extension.
type Video struct {
	// ID is the stable identifier, derived from the file name.
	ID string `json:"-"`
	// Title is the display title.
	Title string `json:"title"`
	// Tags is the ordered set of tags of the video.
	Tags []string `json:"tags"`
	// Duration in seconds, 0 when not probed yet.
	Duration float64 `json:"duracion,omitempty"`
	// Person is free form display metadata.
	Person string `json:"personaje,omitempty"`
	// Date is free form display metadata.
	Date string `json:"fecha,omitempty"`
	// Modes is free form display metadata.
	Modes []string `json:"modo,omitempty"`
	// Added is the time the video file was first seen.
	Added *time.Time `json:"agregado,omitempty"`
}

// DisplayTitle returns the title, or a title derived from the id.
func (v Video) DisplayTitle() string {
	if v.Title != "" {
		return v.Title
	}
	return TitleFromID(v.ID)
}

// HasTag reports whether the video carries tag.
func (v Video) HasTag(tag string) bool {
	for _, t := range v.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Catalog maps video id to video.
type Catalog map[string]Video

// PlayRecord holds the play counter of a video.
type PlayRecord struct {
	// Plays is the number of confirmed playbacks.
	Plays int `json:"plays"`
	// LastPlayed is the time of the last confirmed playback.
	LastPlayed *time.Time `json:"last_played"`
}

// LastPlayedUnix returns the last play time in fractional unix seconds, 0 if never played.
func (p PlayRecord) LastPlayedUnix() float64 {
	if p.LastPlayed == nil || p.LastPlayed.IsZero() {
		return 0
	}
	return float64(p.LastPlayed.UnixNano()) / 1e9
}

// Channel is a tag filtered view over the catalog.
type Channel struct {
	// ID is the channel identifier.
	ID string `json:"-"`
	// Name is the display name.
	Name string `json:"nombre"`
	// Description is shown in the channel admin.
	Description string `json:"descripcion,omitempty"`
	// Icon is the channel icon file name.
	Icon string `json:"icono,omitempty"`
	// PriorityTags is ordered, earlier tags weigh more.
	PriorityTags []string `json:"tags_prioridad"`
	// IncludedTags selects candidates, PriorityTags is used when empty.
	IncludedTags []string `json:"tags_incluidos,omitempty"`
	// ExcludedTags removes candidates carrying any of them.
	ExcludedTags []string `json:"tags_excluidos,omitempty"`
	// IntroVideoID is played when the channel is tuned in.
	IntroVideoID string `json:"intro_video_id,omitempty"`
}

// Included returns the tags that select candidates for the channel.
func (c Channel) Included() []string {
	if len(c.IncludedTags) > 0 {
		return c.IncludedTags
	}
	return c.PriorityTags
}

// DisplayName returns the channel name or its id.
func (c Channel) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Channels maps channel id to channel.
type Channels map[string]Channel

// SortedIDs returns the channel ids in natural order: numeric ids ascending,
// followed by the other ids in lexical order.
func (c Channels) SortedIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, errI := strconv.Atoi(ids[i])
		nj, errJ := strconv.Atoi(ids[j])
		switch {
		case errI == nil && errJ == nil:
			return ni < nj
		case errI == nil:
			return true
		case errJ == nil:
			return false
		}
		return ids[i] < ids[j]
	})
	return ids
}

// NextID returns one more than the highest numeric channel id.
func (c Channels) NextID() string {
	highest := 0
	for id := range c {
		if n, err := strconv.Atoi(id); err == nil && n > highest {
			highest = n
		}
	}
	return strconv.Itoa(highest + 1)
}

// TagGroup is a named, colored group of tags.
type TagGroup struct {
	Color string   `json:"color"`
	Tags  []string `json:"tags"`
}

// Taxonomy maps group name to tag group.
type Taxonomy map[string]TagGroup

// AllTags returns every tag of every group.
func (t Taxonomy) AllTags() map[string]bool {
	all := make(map[string]bool)
	for _, g := range t {
		for _, tag := range g.Tags {
			all[tag] = true
		}
	}
	return all
}

// Settings is the user facing configuration document.
type Settings struct {
	// PriorityTags is the ordered priority list of the fallback channel.
	PriorityTags []string `json:"tags_prioridad"`
	// IncludedTags selects candidates for the fallback channel.
	IncludedTags []string `json:"tags_incluidos"`
	// ShowChannelName is a UI preference, nil means true.
	ShowChannelName *bool `json:"show_channel_name,omitempty"`
}

// ShowName returns the show_channel_name preference.
func (s Settings) ShowName() bool {
	return s.ShowChannelName == nil || *s.ShowChannelName
}

// TitleFromID derives a display title from a video id.
func TitleFromID(id string) string {
	b := []byte(id)
	for i := range b {
		if b[i] == '_' {
			b[i] = ' '
		}
	}
	return string(b)
}
