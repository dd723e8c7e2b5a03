package input

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/erikbos/tvloop/clock"
)

// recorder collects emitted intents as strings.
type recorder struct {
	got  []string
	fail bool
}

func (r *recorder) add(s string) error {
	r.got = append(r.got, s)
	if r.fail {
		return errors.New("disk full")
	}
	return nil
}

func (r *recorder) ChannelZap(_ context.Context, dir int) error { return r.add(fmt.Sprintf("zap%+d", dir)) }
func (r *recorder) MenuNavigate(_ context.Context, d int) error { return r.add(fmt.Sprintf("nav%+d", d)) }
func (r *recorder) MenuToggle(context.Context) error            { return r.add("toggle") }
func (r *recorder) MenuSelect(context.Context) error            { return r.add("select") }
func (r *recorder) VolumeDelta(_ context.Context, d int) error  { return r.add(fmt.Sprintf("vol%+d", d)) }

func newTestMachine(menuOpen bool) (*Machine, *recorder, *clock.Manual) {
	rec := &recorder{}
	clk := clock.NewManual(time.Date(2025, 2, 2, 9, 0, 0, 0, time.UTC))
	m := New(&Options{
		Emitter:  rec,
		MenuOpen: func() bool { return menuOpen },
		Clock:    clk,
	})
	return m, rec, clk
}

func TestGestures(t *testing.T) {
	tests := []struct {
		name     string
		menuOpen bool
		events   []Event
		want     []string
		state    State
	}{
		{"zap forward", false, []Event{CW}, []string{"zap+1"}, Idle},
		{"zap back twice", false, []Event{CCW, CCW}, []string{"zap-1", "zap-1"}, Idle},
		{"menu navigation", true, []Event{CW, CCW}, []string{"nav+1", "nav-1"}, Idle},
		{"click toggles menu", false, []Event{Dn, Up}, []string{"toggle"}, Idle},
		{"click selects in menu", true, []Event{Dn, Up}, []string{"select"}, Idle},
		{"press rotate release is one volume step", false, []Event{Dn, CW, Up}, []string{"vol+5"}, Idle},
		{"two rotations are two volume steps", false, []Event{Dn, CCW, CCW, Up}, []string{"vol-5", "vol-5"}, Idle},
		{"volume in menu does not navigate", true, []Event{Dn, CW, CW, Up}, []string{"vol+5", "vol+5"}, Idle},
		{"held button", false, []Event{Dn}, nil, Evaluating},
		{"volume mode held", false, []Event{Dn, CW}, []string{"vol+5"}, Volume},
		{"press while evaluating ignored", false, []Event{Dn, Dn, Up}, []string{"toggle"}, Idle},
		{"stray release ignored", false, []Event{Up, CW}, []string{"zap+1"}, Idle},
		{"rotate after volume release zaps", false, []Event{Dn, CW, Up, CW}, []string{"vol+5", "zap+1"}, Idle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec, _ := newTestMachine(tt.menuOpen)
			for _, ev := range tt.events {
				m.Handle(context.Background(), ev)
			}
			if !reflect.DeepEqual(rec.got, tt.want) {
				t.Fatalf("emitted %v, want %v", rec.got, tt.want)
			}
			if m.State() != tt.state {
				t.Fatalf("state %s, want %s", m.State(), tt.state)
			}
		})
	}
}

func TestVolumeTimeout(t *testing.T) {
	m, rec, clk := newTestMachine(false)
	ctx := context.Background()

	m.Handle(ctx, Dn)
	m.Handle(ctx, CW)
	clk.Advance(3 * time.Second)
	m.Handle(ctx, CW) // refreshes the timer
	clk.Advance(3 * time.Second)
	m.Handle(ctx, CW)
	if m.State() != Volume {
		t.Fatalf("volume mode ended early: %s", m.State())
	}

	clk.Advance(3300 * time.Millisecond)
	m.Handle(ctx, CW) // volume mode expired: back to idle, rotation zaps
	want := []string{"vol+5", "vol+5", "vol+5", "zap+1"}
	if !reflect.DeepEqual(rec.got, want) {
		t.Fatalf("emitted %v, want %v", rec.got, want)
	}
	if m.State() != Idle {
		t.Fatalf("state %s, want idle", m.State())
	}
}

func TestEmitErrorsDoNotStopProcessing(t *testing.T) {
	m, rec, _ := newTestMachine(false)
	rec.fail = true
	ctx := context.Background()
	m.Handle(ctx, CW)
	m.Handle(ctx, Dn)
	m.Handle(ctx, Up)
	if len(rec.got) != 2 || m.State() != Idle {
		t.Fatalf("got %v in state %s", rec.got, m.State())
	}
}

func TestRun(t *testing.T) {
	m, rec, _ := newTestMachine(false)
	input := strings.Join([]string{
		"ROTARY_CW",
		"garbage",
		"",
		"BTN_PRESS",
		"ROTARY_CCW",
		"BTN_RELEASE",
		"BTN_PRESS",
		"BTN_RELEASE",
	}, "\n")
	if err := m.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"zap+1", "vol-5", "toggle"}
	if !reflect.DeepEqual(rec.got, want) {
		t.Fatalf("emitted %v, want %v", rec.got, want)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	m, rec, _ := newTestMachine(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Run(ctx, strings.NewReader("ROTARY_CW\n")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rec.got) != 0 {
		t.Fatalf("no events expected after cancel, got %v", rec.got)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want Event
		ok   bool
	}{
		{"ROTARY_CW", CW, true},
		{"ROTARY_CCW\r", CCW, true},
		{"  BTN_PRESS ", Dn, true},
		{"BTN_RELEASE", Up, true},
		{"BTN_HOLD", Event{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseLine(tt.line)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLine(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}
