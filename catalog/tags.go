package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database/model"
)

// DefaultGroupColor is the color of groups created without one.
const DefaultGroupColor = "#cccccc"

// AddTag adds tag to group, creating the group when needed, and appends the
// tag to the priority and included lists of the configuration.
func (l *Library) AddTag(ctx context.Context, group, tag string) (model.Taxonomy, error) {
	group, tag = strings.TrimSpace(group), strings.TrimSpace(tag)
	if group == "" || tag == "" {
		return nil, fmt.Errorf("group and tag required: %w", ErrInvalidArgument)
	}

	taxonomy, err := l.repo.GetTaxonomy(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := taxonomy[group]
	if !ok {
		g = model.TagGroup{Color: DefaultGroupColor}
	}
	if !slices.Contains(g.Tags, tag) {
		g.Tags = append(g.Tags, tag)
	}
	taxonomy[group] = g
	if err := l.repo.SaveTaxonomy(ctx, taxonomy); err != nil {
		return nil, err
	}

	settings, err := l.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(settings.PriorityTags, tag) {
		settings.PriorityTags = append(settings.PriorityTags, tag)
	}
	if !slices.Contains(settings.IncludedTags, tag) {
		settings.IncludedTags = append(settings.IncludedTags, tag)
	}
	if err := l.repo.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}
	l.logger.Info("tag added", zap.String("group", group), zap.String("tag", tag))
	return taxonomy, nil
}

// AddGroup creates an empty tag group. Existing groups are left untouched.
func (l *Library) AddGroup(ctx context.Context, group, color string) (model.Taxonomy, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return nil, fmt.Errorf("group required: %w", ErrInvalidArgument)
	}
	if color == "" {
		color = DefaultGroupColor
	}
	taxonomy, err := l.repo.GetTaxonomy(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := taxonomy[group]; ok {
		return taxonomy, nil
	}
	taxonomy[group] = model.TagGroup{Color: color, Tags: []string{}}
	if err := l.repo.SaveTaxonomy(ctx, taxonomy); err != nil {
		return nil, err
	}
	l.logger.Info("group added", zap.String("group", group))
	return taxonomy, nil
}

// DeleteTag removes tag from group, from every video and from the configuration.
func (l *Library) DeleteTag(ctx context.Context, group, tag string) (model.Taxonomy, error) {
	taxonomy, err := l.repo.GetTaxonomy(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := taxonomy[group]
	if !ok || !slices.Contains(g.Tags, tag) {
		return nil, model.ErrNotFound
	}
	g.Tags = slices.DeleteFunc(g.Tags, func(t string) bool { return t == tag })
	taxonomy[group] = g
	if err := l.repo.SaveTaxonomy(ctx, taxonomy); err != nil {
		return nil, err
	}
	if err := l.removeTags(ctx, []string{tag}); err != nil {
		return nil, err
	}
	l.logger.Info("tag deleted", zap.String("group", group), zap.String("tag", tag))
	return taxonomy, nil
}

// DeleteGroup backs up the taxonomy, then removes group and its tags from every
// video and from the configuration.
func (l *Library) DeleteGroup(ctx context.Context, group string) (model.Taxonomy, error) {
	taxonomy, err := l.repo.GetTaxonomy(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := taxonomy[group]
	if !ok {
		return nil, model.ErrNotFound
	}

	backup, err := l.repo.BackupTaxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup taxonomy: %w", err)
	}
	l.logger.Info("taxonomy backed up", zap.String("path", backup))

	delete(taxonomy, group)
	if err := l.repo.SaveTaxonomy(ctx, taxonomy); err != nil {
		return nil, err
	}
	if err := l.removeTags(ctx, g.Tags); err != nil {
		return nil, err
	}
	l.logger.Info("group deleted", zap.String("group", group), zap.Int("tags", len(g.Tags)))
	return taxonomy, nil
}

// removeTags strips tags from every video and from the configuration.
func (l *Library) removeTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	drop := func(t string) bool { return slices.Contains(tags, t) }

	err := l.repo.UpdateCatalog(ctx, func(c model.Catalog) bool {
		changed := false
		for id, v := range c {
			n := len(v.Tags)
			v.Tags = slices.DeleteFunc(v.Tags, drop)
			if len(v.Tags) != n {
				c[id] = v
				changed = true
			}
		}
		return changed
	})
	if err != nil {
		return err
	}

	settings, err := l.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	settings.PriorityTags = slices.DeleteFunc(settings.PriorityTags, drop)
	settings.IncludedTags = slices.DeleteFunc(settings.IncludedTags, drop)
	if err := l.repo.SaveSettings(ctx, settings); err != nil {
		return err
	}
	l.reindex(ctx)
	return nil
}

// SaveSettings stores the fallback tag configuration. Only included tags are
// kept in the priority list.
func (l *Library) SaveSettings(ctx context.Context, priority, included []string) (model.Settings, error) {
	settings, err := l.repo.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	included = CleanTags(included)
	settings.IncludedTags = included
	settings.PriorityTags = slices.DeleteFunc(CleanTags(priority), func(t string) bool {
		return !slices.Contains(included, t)
	})
	if err := l.repo.SaveSettings(ctx, settings); err != nil {
		return model.Settings{}, err
	}
	return settings, nil
}

// CleanSettings drops configured tags that are no longer in the taxonomy and returns the result.
func (l *Library) CleanSettings(ctx context.Context) (model.Settings, error) {
	taxonomy, err := l.repo.GetTaxonomy(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	settings, err := l.repo.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	valid := taxonomy.AllTags()
	stale := func(t string) bool { return !valid[t] }
	np, ni := len(settings.PriorityTags), len(settings.IncludedTags)
	settings.PriorityTags = slices.DeleteFunc(settings.PriorityTags, stale)
	settings.IncludedTags = slices.DeleteFunc(settings.IncludedTags, stale)
	if len(settings.PriorityTags) != np || len(settings.IncludedTags) != ni {
		if err := l.repo.SaveSettings(ctx, settings); err != nil {
			return model.Settings{}, err
		}
	}
	return settings, nil
}
