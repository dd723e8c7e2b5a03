// Package remote carries out the intents of the encoder: it changes the
// active channel and the volume, and signals the frontend through the mailbox.
package remote

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database"
	"github.com/erikbos/tvloop/mailbox"
)

// Options configures a Remote.
type Options struct {
	Repo    database.ChannelRepo
	Mailbox *mailbox.Mailbox
	Logger  *zap.Logger
}

// Remote implements input.Emitter.
type Remote struct {
	repo    database.ChannelRepo
	mailbox *mailbox.Mailbox
	logger  *zap.Logger
}

// New returns a Remote.
func New(o *Options) *Remote {
	r := &Remote{repo: o.Repo, mailbox: o.Mailbox, logger: o.Logger}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("remote")
	return r
}

// ChannelZap steps the active channel dir positions through the channel list,
// wrapping around, and asks the frontend to reload.
func (r *Remote) ChannelZap(ctx context.Context, dir int) error {
	channels, err := r.repo.GetChannels(ctx)
	if err != nil {
		return err
	}
	ids := channels.SortedIDs()
	if len(ids) == 0 {
		r.logger.Warn("no channels to zap to")
		return nil
	}
	current, err := r.repo.GetActiveChannel(ctx)
	if err != nil {
		return err
	}

	idx := max(slices.Index(ids, current), 0)
	next := ids[((idx+dir)%len(ids)+len(ids))%len(ids)]
	if next == current {
		r.logger.Info("channel unchanged", zap.String("channel", current))
		return nil
	}

	if err := r.repo.SetActiveChannel(ctx, next); err != nil {
		return err
	}
	r.logger.Info("channel changed", zap.String("from", current), zap.String("to", next))
	_, err = r.mailbox.Post(mailbox.Reload, 0)
	return err
}

// MenuNavigate moves the menu cursor by delta.
func (r *Remote) MenuNavigate(ctx context.Context, delta int) error {
	_, err := r.mailbox.Post(mailbox.MenuNav, delta)
	return err
}

// MenuToggle opens or closes the menu.
func (r *Remote) MenuToggle(ctx context.Context) error {
	_, err := r.mailbox.Post(mailbox.MenuToggle, 0)
	return err
}

// MenuSelect confirms the highlighted menu entry.
func (r *Remote) MenuSelect(ctx context.Context) error {
	_, err := r.mailbox.Post(mailbox.MenuSelect, 0)
	return err
}

// VolumeDelta adjusts the volume by delta.
func (r *Remote) VolumeDelta(ctx context.Context, delta int) error {
	_, err := r.mailbox.AdjustVolume(delta)
	return err
}

// MenuOpen reports whether the frontend menu is open.
func (r *Remote) MenuOpen() bool {
	return r.mailbox.MenuOpen()
}
