// Package scheduler picks the next video to play on a channel.
//
// Candidates are the catalog videos carrying one of the channel's included
// tags that have not been shown in the current rotation. They are ordered by
// plays per started minute of duration, then by last play time, then by tag
// priority, with a small random jitter as the final tie-break.
//
// Each channel has short-term memory: a pending pick that is handed out again
// until the frontend confirms it played, a sticky window absorbing bursts of
// queries, and a cooldown after a fresh pick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/clock"
	"github.com/erikbos/tvloop/database"
	"github.com/erikbos/tvloop/database/model"
)

var (
	// ErrNoTags is returned for a channel without included or priority tags.
	ErrNoTags = errors.New("no tags configured")
	// ErrMissingVideoID is returned by ConfirmPlayed for an empty id.
	ErrMissingVideoID = errors.New("missing video_id")
	// ErrChannelNotFound is returned by NextFor for an unknown channel.
	ErrChannelNotFound = errors.New("channel not found")
)

// Status is the kind of answer Next gives.
type Status string

const (
	// StatusSelected carries a Selection.
	StatusSelected Status = "selected"
	// StatusCooldown means the channel was asked too soon after a fresh pick.
	StatusCooldown Status = "cooldown"
	// StatusEmpty means the channel has no candidates at all.
	StatusEmpty Status = "empty"
)

// Selection describes the video to play.
type Selection struct {
	VideoID       string   `json:"video_id"`
	Title         string   `json:"title"`
	Tags          []string `json:"tags"`
	ScoreTags     int      `json:"score_tags"`
	FairPlaysNorm float64  `json:"fair_plays_norm"`
	FairLastTS    float64  `json:"fair_last_ts"`
	ChannelID     string   `json:"modo"`
	ChannelName   string   `json:"canal_nombre"`
	// Reused is set when a pending, unconfirmed pick is handed out again.
	Reused bool `json:"reused,omitempty"`
	// DoNotRestart tells the player not to restart the video if it is already playing it.
	DoNotRestart bool `json:"do_not_restart,omitempty"`
	// Sticky is set when the last choice is returned within the sticky window.
	Sticky bool `json:"sticky,omitempty"`
}

// Result is the answer of Next.
type Result struct {
	Status    Status
	ChannelID string
	Selection *Selection
}

// Options configures a Scheduler.
type Options struct {
	Repo  database.Repository
	Clock clock.Clock
	// Rand provides jitter. Defaults to an unseeded source.
	Rand *rand.Rand
	// PendingTTL is how long an unconfirmed pick is handed out again.
	PendingTTL time.Duration
	// StickyWindow is how long the last choice is returned again.
	StickyWindow time.Duration
	// Cooldown is the minimum time between fresh picks once the sticky window expired.
	Cooldown time.Duration
	// Jitter is the upper bound of the random tie-break.
	Jitter float64
	// FallbackChannel is the id of the synthetic channel built from the user configuration.
	FallbackChannel string
	Logger          *zap.Logger
}

// Default timings.
const (
	DefaultPendingTTL   = 12 * time.Second
	DefaultStickyWindow = 3 * time.Second
	DefaultCooldown     = 3 * time.Second
	DefaultJitter       = 0.01
)

// Scheduler picks videos and records confirmed plays.
type Scheduler struct {
	repo         database.Repository
	clock        clock.Clock
	pendingTTL   time.Duration
	stickyWindow time.Duration
	cooldown     time.Duration
	jitter       float64
	fallback     string
	logger       *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	// mu guards memory, each channelMemory has its own lock.
	mu     sync.Mutex
	memory map[string]*channelMemory
}

type pick struct {
	videoID string
	at      time.Time
}

// channelMemory is the volatile per-channel state.
type channelMemory struct {
	mu         sync.Mutex
	shown      map[string]bool
	pending    *pick
	lastChoice *pick
	lastQuery  time.Time
}

// New returns a Scheduler.
func New(o *Options) *Scheduler {
	s := &Scheduler{
		repo:         o.Repo,
		clock:        o.Clock,
		rand:         o.Rand,
		pendingTTL:   o.PendingTTL,
		stickyWindow: o.StickyWindow,
		cooldown:     o.Cooldown,
		jitter:       o.Jitter,
		fallback:     o.FallbackChannel,
		logger:       o.Logger,
		memory:       make(map[string]*channelMemory),
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if s.pendingTTL == 0 {
		s.pendingTTL = DefaultPendingTTL
	}
	if s.stickyWindow == 0 {
		s.stickyWindow = DefaultStickyWindow
	}
	if s.cooldown == 0 {
		s.cooldown = DefaultCooldown
	}
	if s.jitter == 0 {
		s.jitter = DefaultJitter
	}
	if s.fallback == "" {
		s.fallback = "base"
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("scheduler")
	return s
}

func (s *Scheduler) channelMemory(channelID string) *channelMemory {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memory[channelID]
	if !ok {
		m = &channelMemory{shown: make(map[string]bool)}
		s.memory[channelID] = m
	}
	return m
}

// Next picks the next video for the active channel.
func (s *Scheduler) Next(ctx context.Context) (Result, error) {
	channel, _, err := database.ResolveActiveChannel(ctx, s.repo, s.fallback)
	if err != nil {
		return Result{}, err
	}
	return s.next(ctx, channel)
}

// NextFor picks the next video for channel channelID.
func (s *Scheduler) NextFor(ctx context.Context, channelID string) (Result, error) {
	channel, synthetic, err := database.ResolveChannel(ctx, s.repo, channelID, s.fallback)
	if err != nil {
		return Result{}, err
	}
	if synthetic && channelID != s.fallback {
		return Result{}, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	return s.next(ctx, channel)
}

func (s *Scheduler) next(ctx context.Context, channel model.Channel) (Result, error) {
	catalog, err := s.repo.GetCatalog(ctx)
	if err != nil {
		return Result{}, err
	}

	mem := s.channelMemory(channel.ID)
	mem.mu.Lock()
	defer mem.mu.Unlock()

	now := s.clock.Now()
	log := s.logger.With(zap.String("channel", channel.ID))

	if p := mem.pending; p != nil && now.Sub(p.at) < s.pendingTTL {
		log.Info("reusing pending pick", zap.String("video", p.videoID))
		sel := s.selection(catalog, p.videoID)
		sel.Reused = true
		sel.DoNotRestart = true
		return selected(channel, sel), nil
	}

	if c := mem.lastChoice; c != nil && now.Sub(c.at) < s.stickyWindow {
		if _, ok := catalog[c.videoID]; ok {
			log.Debug("sticky choice", zap.String("video", c.videoID))
			sel := s.selection(catalog, c.videoID)
			sel.Sticky = true
			return selected(channel, sel), nil
		}
	}

	if c := mem.lastChoice; c != nil && now.Sub(mem.lastQuery) < s.cooldown && now.Sub(c.at) >= s.stickyWindow {
		log.Info("cooldown", zap.Duration("since_last", now.Sub(mem.lastQuery)))
		return Result{Status: StatusCooldown, ChannelID: channel.ID}, nil
	}

	included := channel.Included()
	if len(included) == 0 {
		return Result{}, fmt.Errorf("channel %s: %w", channel.ID, ErrNoTags)
	}

	candidates := s.candidates(catalog, channel, included, mem.shown)
	if len(candidates) == 0 && len(mem.shown) > 0 {
		log.Info("rotation complete, resetting shown videos", zap.Int("shown", len(mem.shown)))
		mem.shown = make(map[string]bool)
		candidates = s.candidates(catalog, channel, included, mem.shown)
		// Keep the last choice out of the new rotation unless it is the only candidate.
		if mem.lastChoice != nil && len(candidates) > 1 {
			mem.shown[mem.lastChoice.videoID] = true
			candidates = s.candidates(catalog, channel, included, mem.shown)
		}
	}
	if len(candidates) == 0 {
		log.Info("no videos")
		return Result{Status: StatusEmpty, ChannelID: channel.ID}, nil
	}

	plays, err := s.repo.GetPlays(ctx)
	if err != nil {
		return Result{}, err
	}
	ranked := s.rank(candidates, catalog, plays, channel.PriorityTags)
	winner := ranked[0]

	mem.pending = &pick{videoID: winner.videoID, at: now}
	mem.lastChoice = &pick{videoID: winner.videoID, at: now}
	mem.shown[winner.videoID] = true
	mem.lastQuery = now

	log.Info("picked",
		zap.String("video", winner.videoID),
		zap.Int("score_tags", winner.tagScore),
		zap.Float64("plays_norm", winner.playsNorm),
		zap.Int("candidates", len(candidates)))

	video := catalog[winner.videoID]
	return selected(channel, Selection{
		VideoID:       winner.videoID,
		Title:         video.DisplayTitle(),
		Tags:          nonNil(video.Tags),
		ScoreTags:     winner.tagScore,
		FairPlaysNorm: winner.playsNorm,
		FairLastTS:    winner.lastTS,
	}), nil
}

// selection builds a Selection for a remembered pick, which may have left the catalog.
func (s *Scheduler) selection(catalog model.Catalog, videoID string) Selection {
	video, ok := catalog[videoID]
	if !ok {
		return Selection{VideoID: videoID, Title: model.TitleFromID(videoID), Tags: []string{}}
	}
	return Selection{VideoID: videoID, Title: video.DisplayTitle(), Tags: nonNil(video.Tags)}
}

func selected(channel model.Channel, sel Selection) Result {
	sel.ChannelID = channel.ID
	sel.ChannelName = channel.DisplayName()
	return Result{Status: StatusSelected, ChannelID: channel.ID, Selection: &sel}
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// candidates returns the ids of the videos eligible on channel, sorted.
func (s *Scheduler) candidates(catalog model.Catalog, channel model.Channel, included []string, shown map[string]bool) []string {
	want := make(map[string]bool, len(included))
	for _, t := range included {
		want[t] = true
	}
	var ids []string
	for id, v := range catalog {
		if shown[id] {
			continue
		}
		if hasAny(v, channel.ExcludedTags) {
			continue
		}
		match := false
		for _, t := range v.Tags {
			if want[t] {
				match = true
				break
			}
		}
		if match {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func hasAny(v model.Video, tags []string) bool {
	for _, t := range tags {
		if v.HasTag(t) {
			return true
		}
	}
	return false
}

type scored struct {
	videoID   string
	playsNorm float64
	lastTS    float64
	tagScore  int
	jitter    float64
}

// rank orders candidates ascending by plays per minute, last play time,
// descending tag score, and jitter.
func (s *Scheduler) rank(ids []string, catalog model.Catalog, plays map[string]model.PlayRecord, priority []string) []scored {
	s.randMu.Lock()
	ranked := make([]scored, 0, len(ids))
	for _, id := range ids {
		video := catalog[id]
		rec := plays[id]
		ranked = append(ranked, scored{
			videoID:   id,
			playsNorm: PlaysNorm(rec.Plays, video.Duration),
			lastTS:    rec.LastPlayedUnix(),
			tagScore:  TagScore(video.Tags, priority),
			jitter:    s.rand.Float64() * s.jitter,
		})
	}
	s.randMu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.playsNorm != b.playsNorm {
			return a.playsNorm < b.playsNorm
		}
		if a.lastTS != b.lastTS {
			return a.lastTS < b.lastTS
		}
		if a.tagScore != b.tagScore {
			return a.tagScore > b.tagScore
		}
		return a.jitter < b.jitter
	})
	return ranked
}

// PlaysNorm returns plays divided by the number of started minutes of duration, at least one.
func PlaysNorm(plays int, durationSeconds float64) float64 {
	minutes := max(1, math.Ceil(durationSeconds/60))
	return float64(plays) / minutes
}

// TagScore sums len(priority)-index over the distinct tags found in priority.
func TagScore(tags, priority []string) int {
	seen := make(map[string]bool, len(tags))
	score := 0
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		for i, p := range priority {
			if p == t {
				score += len(priority) - i
				break
			}
		}
	}
	return score
}

// ConfirmPlayed records a completed playback of videoID and releases any
// pending pick of that video.
func (s *Scheduler) ConfirmPlayed(ctx context.Context, videoID string) (model.PlayRecord, error) {
	if videoID == "" {
		return model.PlayRecord{}, ErrMissingVideoID
	}

	s.mu.Lock()
	memories := make(map[string]*channelMemory, len(s.memory))
	for id, m := range s.memory {
		memories[id] = m
	}
	s.mu.Unlock()

	for channelID, m := range memories {
		m.mu.Lock()
		if m.pending != nil && m.pending.videoID == videoID {
			m.pending = nil
			s.logger.Info("confirmed pending pick", zap.String("channel", channelID), zap.String("video", videoID))
		}
		m.mu.Unlock()
	}

	return s.repo.BumpPlay(ctx, videoID, s.clock.Now())
}

// ResetChannel forgets the short-term memory of a channel, starting a fresh rotation.
func (s *Scheduler) ResetChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.memory, channelID)
}
