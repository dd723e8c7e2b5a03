package remote

import (
	"context"
	"testing"
	"time"

	"github.com/erikbos/tvloop/clock"
	"github.com/erikbos/tvloop/database/jsonfile"
	"github.com/erikbos/tvloop/database/model"
	"github.com/erikbos/tvloop/input"
	"github.com/erikbos/tvloop/mailbox"
)

var _ input.Emitter = (*Remote)(nil)

func newTestRemote(t *testing.T, channelIDs ...string) (*Remote, *jsonfile.Store, *mailbox.Mailbox) {
	t.Helper()
	ctx := context.Background()
	store, err := jsonfile.New(&jsonfile.Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range channelIDs {
		if _, err := store.SaveChannel(ctx, model.Channel{ID: id, PriorityTags: []string{"humor"}}); err != nil {
			t.Fatal(err)
		}
	}
	mb := mailbox.New(&mailbox.Options{
		Dir:   t.TempDir(),
		Clock: clock.NewManual(time.Date(2025, 4, 4, 4, 0, 0, 0, time.UTC)),
	})
	return New(&Options{Repo: store, Mailbox: mb}), store, mb
}

func TestChannelZap_Circular(t *testing.T) {
	ctx := context.Background()
	r, store, mb := newTestRemote(t, "10", "2", "1")
	reload := mb.Cursor(mailbox.Reload)
	if err := store.SetActiveChannel(ctx, "10"); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		dir  int
		want string
	}{
		{+1, "1"},
		{+1, "2"},
		{-1, "1"},
		{-1, "10"},
	}
	for _, s := range steps {
		if err := r.ChannelZap(ctx, s.dir); err != nil {
			t.Fatalf("ChannelZap: %v", err)
		}
		got, _ := store.GetActiveChannel(ctx)
		if got != s.want {
			t.Fatalf("zap %+d: active %q, want %q", s.dir, got, s.want)
		}
		if _, ok, _ := reload.Consume(); !ok {
			t.Fatalf("zap %+d: no reload signal", s.dir)
		}
	}
}

func TestChannelZap_SingleChannelIsNoop(t *testing.T) {
	ctx := context.Background()
	r, store, mb := newTestRemote(t, "1")
	store.SetActiveChannel(ctx, "1")

	if err := r.ChannelZap(ctx, +1); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := mb.Peek(mailbox.Reload); ok {
		t.Fatal("reload posted although channel did not change")
	}
}

func TestChannelZap_UnknownActiveStartsAtFirst(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newTestRemote(t, "1", "2", "3")
	store.SetActiveChannel(ctx, "base")

	if err := r.ChannelZap(ctx, +1); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.GetActiveChannel(ctx); got != "2" {
		t.Fatalf("active %q, want 2", got)
	}
}

func TestIntents(t *testing.T) {
	ctx := context.Background()
	r, _, mb := newTestRemote(t)

	if err := r.MenuNavigate(ctx, -1); err != nil {
		t.Fatal(err)
	}
	if msg, ok, _ := mb.Peek(mailbox.MenuNav); !ok || msg.Delta != -1 {
		t.Fatalf("unexpected nav message %+v", msg)
	}
	if err := r.MenuToggle(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := mb.Peek(mailbox.MenuToggle); !ok {
		t.Fatal("no menu toggle")
	}
	if err := r.MenuSelect(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := mb.Peek(mailbox.MenuSelect); !ok {
		t.Fatal("no menu select")
	}
	if err := r.VolumeDelta(ctx, -5); err != nil {
		t.Fatal(err)
	}
	if v, _ := mb.Volume(); v != 45 {
		t.Fatalf("volume %d, want 45", v)
	}
	if recent, _ := mb.VolumeRecent(); !recent {
		t.Fatal("expected volume ping")
	}
	if r.MenuOpen() {
		t.Fatal("menu should be closed")
	}
}

func TestMachineDrivesRemote(t *testing.T) {
	ctx := context.Background()
	r, store, mb := newTestRemote(t, "1", "2")
	store.SetActiveChannel(ctx, "1")

	m := input.New(&input.Options{Emitter: r, MenuOpen: r.MenuOpen})
	for _, ev := range []input.Event{input.CW, input.Dn, input.CW, input.CW, input.Up} {
		m.Handle(ctx, ev)
	}
	if got, _ := store.GetActiveChannel(ctx); got != "2" {
		t.Fatalf("active %q, want 2", got)
	}
	if v, _ := mb.Volume(); v != 60 {
		t.Fatalf("volume %d, want 60", v)
	}
}
