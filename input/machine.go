// Package input turns the events of a rotary encoder with a push button into
// user intents.
//
// Turning the knob zaps channels, or moves the menu cursor when the menu is
// open. A short click toggles the menu, or selects when it is open. Turning
// while holding the button adjusts the volume; volume mode ends on release or
// after a period without rotation.
package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/clock"
)

// Emitter receives the intents recognized by a Machine.
type Emitter interface {
	ChannelZap(ctx context.Context, dir int) error
	MenuNavigate(ctx context.Context, delta int) error
	MenuToggle(ctx context.Context) error
	MenuSelect(ctx context.Context) error
	VolumeDelta(ctx context.Context, delta int) error
}

// State of the gesture machine.
type State int

const (
	Idle State = iota
	// Evaluating means the button is down and the gesture is not known yet.
	Evaluating
	// Volume means the knob was turned while the button was down.
	Volume
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Evaluating:
		return "evaluating"
	case Volume:
		return "volume"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Default gesture settings.
const (
	DefaultVolumeTimeout = 3200 * time.Millisecond
	DefaultVolumeStep    = 5
)

// Options configures a Machine.
type Options struct {
	Emitter Emitter
	// MenuOpen reports whether the frontend menu is open.
	MenuOpen func() bool
	Clock    clock.Clock
	// VolumeTimeout ends volume mode after this long without rotation.
	VolumeTimeout time.Duration
	// VolumeStep is the volume change per detent.
	VolumeStep int
	Logger     *zap.Logger
}

// Machine is the gesture state machine. It is not safe for concurrent use;
// one reader goroutine drives it.
type Machine struct {
	emit          Emitter
	menuOpen      func() bool
	clock         clock.Clock
	volumeTimeout time.Duration
	volumeStep    int
	logger        *zap.Logger

	state State
	// prior is restored when evaluating or volume mode ends
	prior State
	// rotated is set when the knob turned during the current press
	rotated bool
	// volumeAt is the time of the last volume rotation
	volumeAt time.Time
}

// New returns a Machine in the idle state.
func New(o *Options) *Machine {
	m := &Machine{
		emit:          o.Emitter,
		menuOpen:      o.MenuOpen,
		clock:         o.Clock,
		volumeTimeout: o.VolumeTimeout,
		volumeStep:    o.VolumeStep,
		logger:        o.Logger,
	}
	if m.menuOpen == nil {
		m.menuOpen = func() bool { return false }
	}
	if m.clock == nil {
		m.clock = clock.Real{}
	}
	if m.volumeTimeout == 0 {
		m.volumeTimeout = DefaultVolumeTimeout
	}
	if m.volumeStep == 0 {
		m.volumeStep = DefaultVolumeStep
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("input")
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Expire leaves volume mode if it has been idle longer than the volume timeout.
func (m *Machine) Expire() {
	if m.state == Volume && m.clock.Now().Sub(m.volumeAt) > m.volumeTimeout {
		m.logger.Info("volume mode timed out", zap.Stringer("restore", m.prior))
		m.state = m.prior
		m.rotated = false
	}
}

// Handle processes one event.
func (m *Machine) Handle(ctx context.Context, ev Event) {
	m.Expire()

	switch m.state {
	case Idle:
		switch ev.Kind {
		case Rotate:
			if m.menuOpen() {
				m.report("menu-nav", m.emit.MenuNavigate(ctx, ev.Dir))
			} else {
				m.report("channel-zap", m.emit.ChannelZap(ctx, ev.Dir))
			}
		case Press:
			m.prior = m.state
			m.rotated = false
			m.state = Evaluating
		}

	case Evaluating:
		switch ev.Kind {
		case Rotate:
			m.logger.Debug("gesture is volume")
			m.rotated = true
			m.state = Volume
			m.volume(ctx, ev.Dir)
		case Release:
			if m.rotated {
				m.rotated = false
				m.state = m.prior
				return
			}
			if m.menuOpen() {
				m.report("menu-select", m.emit.MenuSelect(ctx))
			} else {
				m.report("menu-toggle", m.emit.MenuToggle(ctx))
			}
			m.state = Idle
		}

	case Volume:
		switch ev.Kind {
		case Rotate:
			m.volume(ctx, ev.Dir)
		case Release:
			m.rotated = false
			m.state = m.prior
		}
	}
}

func (m *Machine) volume(ctx context.Context, dir int) {
	m.volumeAt = m.clock.Now()
	m.report("volume-delta", m.emit.VolumeDelta(ctx, dir*m.volumeStep))
}

func (m *Machine) report(intent string, err error) {
	if err != nil {
		m.logger.Error("emit failed", zap.String("intent", intent), zap.Error(err))
		return
	}
	m.logger.Debug("emitted", zap.String("intent", intent))
}

// Run feeds the lines of r into the machine until r is exhausted or ctx is done.
// Unknown lines are logged and skipped.
func (m *Machine) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		ev, ok := ParseLine(line)
		if !ok {
			if line != "" {
				m.logger.Warn("unknown encoder line", zap.String("line", line))
			}
			continue
		}
		m.Handle(ctx, ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading encoder: %w", err)
	}
	return ctx.Err()
}
