package database

import (
	"context"
	"errors"

	"github.com/erikbos/tvloop/database/model"
)

// FallbackChannelName is the display name of the synthetic fallback channel.
const FallbackChannelName = "Base"

// ResolveActiveChannel returns the active channel. When the stored pointer does
// not resolve to a channel, it returns a synthetic channel with id fallbackID
// whose tags come from the user configuration, and synthetic is true.
func ResolveActiveChannel(ctx context.Context, r Repository, fallbackID string) (channel model.Channel, synthetic bool, err error) {
	activeID, err := r.GetActiveChannel(ctx)
	if err != nil {
		return model.Channel{}, false, err
	}
	return ResolveChannel(ctx, r, activeID, fallbackID)
}

// ResolveChannel returns channel channelID, or the synthetic fallback channel
// when channelID is unknown or equals fallbackID.
func ResolveChannel(ctx context.Context, r Repository, channelID, fallbackID string) (model.Channel, bool, error) {
	if channelID != "" && channelID != fallbackID {
		c, err := r.GetChannel(ctx, channelID)
		if err == nil {
			return *c, false, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return model.Channel{}, false, err
		}
	}
	settings, err := r.GetSettings(ctx)
	if err != nil {
		return model.Channel{}, false, err
	}
	return model.Channel{
		ID:           fallbackID,
		Name:         FallbackChannelName,
		PriorityTags: settings.PriorityTags,
		IncludedTags: settings.IncludedTags,
	}, true, nil
}
