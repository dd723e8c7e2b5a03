package mailbox

import (
	"errors"
	"io/fs"
	"time"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/jsonfile"
)

const (
	volumeFile    = "tvargenta_volumen.json"
	menuStateFile = "menu_state.json"

	// DefaultVolume is reported when no volume has been stored yet.
	DefaultVolume = 50
	// volumePingWindow is how long a volume change counts as recent.
	volumePingWindow = time.Second
)

type volumeDoc struct {
	Value int `json:"valor"`
}

// MenuState is the menu visibility published by the frontend.
type MenuState struct {
	Open bool `json:"open"`
	// TS is the time of the last change in fractional unix seconds.
	TS float64 `json:"ts,omitempty"`
}

func clampVolume(v int) int {
	return max(0, min(100, v))
}

// loadDoc reads a state document, returning def when it is missing or unreadable.
func loadDoc[T any](m *Mailbox, name string, def T) (T, error) {
	var v T
	err := jsonfile.ReadJSON(m.path(name), &v)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, fs.ErrNotExist):
		return def, nil
	case errors.Is(err, jsonfile.ErrCorrupt):
		m.logger.Warn("unreadable state document, using default", zap.String("document", name), zap.Error(err))
		return def, nil
	}
	return def, err
}

// Volume returns the stored volume, DefaultVolume when none is stored.
func (m *Mailbox) Volume() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := loadDoc(m, volumeFile, volumeDoc{Value: DefaultVolume})
	return clampVolume(doc.Value), err
}

// SetVolume stores v clamped to 0..100 and returns the stored value.
func (m *Mailbox) SetVolume(v int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v = clampVolume(v)
	if err := jsonfile.WriteJSON(m.path(volumeFile), volumeDoc{Value: v}); err != nil {
		return 0, err
	}
	return v, nil
}

// AdjustVolume changes the stored volume by delta, clamped to 0..100, and posts VolumeChanged.
func (m *Mailbox) AdjustVolume(delta int) (int, error) {
	m.mu.Lock()
	doc, err := loadDoc(m, volumeFile, volumeDoc{Value: DefaultVolume})
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}
	v := clampVolume(doc.Value + delta)
	err = jsonfile.WriteJSON(m.path(volumeFile), volumeDoc{Value: v})
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}

	if _, err := m.Post(VolumeChanged, delta); err != nil {
		return v, err
	}
	m.logger.Info("volume adjusted", zap.Int("volume", v), zap.Int("delta", delta))
	return v, nil
}

// VolumeRecent reports whether a volume change was posted within the last second.
func (m *Mailbox) VolumeRecent() (bool, error) {
	msg, ok, err := m.Peek(VolumeChanged)
	if err != nil || !ok {
		return false, err
	}
	return m.clock.Now().Sub(msg.Time()) < volumePingWindow, nil
}

// MenuState returns the published menu state, closed when none is published.
func (m *Mailbox) MenuState() (MenuState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return loadDoc(m, menuStateFile, MenuState{})
}

// MenuOpen reports whether the menu is open. Errors count as closed.
func (m *Mailbox) MenuOpen() bool {
	st, err := m.MenuState()
	if err != nil {
		m.logger.Warn("reading menu state", zap.Error(err))
		return false
	}
	return st.Open
}

// SetMenuOpen publishes the menu state.
func (m *Mailbox) SetMenuOpen(open bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return jsonfile.WriteJSON(m.path(menuStateFile), MenuState{Open: open, TS: unixSeconds(m.clock.Now())})
}
