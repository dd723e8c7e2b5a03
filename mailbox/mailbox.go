// Package mailbox passes one-shot signals between the encoder process and the
// HTTP frontend through small JSON files in a shared state directory.
//
// A producer posts a Message, overwriting any previous one (last write wins).
// Each consumer owns a Cursor and sees a message at most once: a message is
// delivered when its timestamp is strictly newer than the last one the cursor
// acknowledged.
package mailbox

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/clock"
	"github.com/erikbos/tvloop/database/jsonfile"
)

// Signal names a one-shot signal. The value is the file name in the state directory.
type Signal string

const (
	// Reload asks the frontend to reload after a channel change.
	Reload Signal = "trigger_reload.json"
	// MenuToggle asks the frontend to open or close the menu.
	MenuToggle Signal = "trigger_menu.json"
	// MenuNav carries a menu cursor delta.
	MenuNav Signal = "trigger_menu_nav.json"
	// MenuSelect confirms the highlighted menu entry.
	MenuSelect Signal = "trigger_menu_select.json"
	// VolumeChanged is posted on every volume adjustment.
	VolumeChanged Signal = "trigger_volumen.json"
)

// Message is the content of a signal file.
type Message struct {
	ID string `json:"id,omitempty"`
	// Timestamp in fractional unix seconds.
	Timestamp float64 `json:"timestamp"`
	Delta     int     `json:"delta,omitempty"`
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	sec := int64(m.Timestamp)
	return time.Unix(sec, int64((m.Timestamp-float64(sec))*1e9))
}

// Options configures a Mailbox.
type Options struct {
	// Dir is the shared state directory.
	Dir    string
	Clock  clock.Clock
	Logger *zap.Logger
}

// Mailbox reads and writes signal files and the small shared state documents.
type Mailbox struct {
	dir    string
	clock  clock.Clock
	logger *zap.Logger
	// mu serializes read-modify-write of documents within this process.
	mu sync.Mutex
}

// New returns a Mailbox on o.Dir.
func New(o *Options) *Mailbox {
	m := &Mailbox{dir: o.Dir, clock: o.Clock, logger: o.Logger}
	if m.dir == "" {
		m.dir = os.TempDir()
	}
	if m.clock == nil {
		m.clock = clock.Real{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("mailbox")
	return m
}

// Dir returns the state directory.
func (m *Mailbox) Dir() string {
	return m.dir
}

func (m *Mailbox) path(name string) string {
	return filepath.Join(m.dir, name)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Post writes a new message for sig and returns it.
// Timestamps of successive posts of a signal strictly increase.
func (m *Mailbox) Post(sig Signal, delta int) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Timestamp: unixSeconds(m.clock.Now()),
		Delta:     delta,
	}
	if prev, ok, _ := m.read(sig); ok && prev.Timestamp >= msg.Timestamp {
		msg.Timestamp = prev.Timestamp + 1e-6
	}
	if err := jsonfile.WriteJSON(m.path(string(sig)), msg); err != nil {
		return Message{}, err
	}
	m.logger.Debug("posted", zap.String("signal", string(sig)), zap.String("id", msg.ID), zap.Int("delta", delta))
	return msg, nil
}

// Peek returns the current message of sig, if any.
func (m *Mailbox) Peek(sig Signal) (Message, bool, error) {
	return m.read(sig)
}

// read returns the current message. Files written by other producers without
// a timestamp, or that do not decode, are stamped with their modification time.
func (m *Mailbox) read(sig Signal) (Message, bool, error) {
	path := m.path(string(sig))
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}

	var msg Message
	if err := jsonfile.ReadJSON(path, &msg); err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, jsonfile.ErrCorrupt) {
		return Message{}, false, err
	}
	if msg.Timestamp <= 0 {
		msg.Timestamp = unixSeconds(st.ModTime())
	}
	return msg, true, nil
}

// Cursor returns a new consumer position for sig, positioned before any message.
func (m *Mailbox) Cursor(sig Signal) *Cursor {
	return &Cursor{mb: m, sig: sig}
}

// Cursor tracks which message of a signal a consumer has acknowledged.
type Cursor struct {
	mb  *Mailbox
	sig Signal
	mu  sync.Mutex
	// last acknowledged timestamp
	last float64
}

// Pending returns the current message if it has not been acknowledged yet.
func (c *Cursor) Pending() (Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pending()
}

func (c *Cursor) pending() (Message, bool, error) {
	msg, ok, err := c.mb.read(c.sig)
	if err != nil || !ok {
		return Message{}, false, err
	}
	if msg.Timestamp <= c.last {
		return Message{}, false, nil
	}
	return msg, true, nil
}

// Ack marks msg and everything older as consumed.
func (c *Cursor) Ack(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.Timestamp > c.last {
		c.last = msg.Timestamp
	}
}

// Consume returns the pending message, if any, and acknowledges it.
func (c *Cursor) Consume() (Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok, err := c.pending()
	if ok {
		c.last = msg.Timestamp
	}
	return msg, ok, err
}

// Skip acknowledges whatever message is currently posted, so a consumer
// starting up does not act on a stale signal.
func (c *Cursor) Skip() error {
	_, _, err := c.Consume()
	return err
}
