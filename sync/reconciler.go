// api/sync/reconciler.go
package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"funnelsight/api/models"
	"funnelsight/api/utils"
)

// StepCatalog is what the reconciler needs from the step store.
type StepCatalog interface {
	UpsertStep(ctx context.Context, def models.StepDefinition) (*models.StepDefinition, error)
	MaxDynamicPosition(ctx context.Context, funnelID int) (int, error)
	GetStepsByFunnel(ctx context.Context, funnelID int) ([]models.StepDefinition, error)
}

// ReconcileSteps makes sure every step key referenced by the aggregates has a
// StepDefinition before anything is written.
//
// Catalog entries are upserted keyed by (funnel, position) so a renamed page
// updates in place. Keys observed in event data but known to neither the
// catalog nor the stored definitions get a synthesized definition: a
// title-cased name derived from the key and a position starting at
// models.DynamicOrdinalBase, incremented per discovery, so catalog and
// discovered ordinals never collide. A key discovered on an earlier run keeps
// its stored ordinal on every subsequent sync. firstSeenPos carries the
// platform's position counter from the first event a key appeared in; it is
// diagnostic ordering only and never keys an aggregate.
//
// Returns the full key -> definition map; aggregate rows whose key is still
// absent from it must be dropped by the caller rather than fail the run.
func ReconcileSteps(ctx context.Context, catalog StepCatalog, funnelID int, observedKeys []string, firstSeenPos map[string]int, logger zerolog.Logger) (map[string]models.StepDefinition, error) {
	defs := make(map[string]models.StepDefinition)

	// Seed from what is already stored. Keys discovered on an earlier run are
	// known steps with a stable ordinal, not new discoveries; skipping this
	// would hand the same key a fresh ordinal on every re-sync.
	existing, err := catalog.GetStepsByFunnel(ctx, funnelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing step definitions: %w", err)
	}
	for _, def := range existing {
		defs[def.StepKey] = def
	}

	static := models.StaticCatalog()
	if len(static) >= models.DynamicOrdinalBase-1 {
		logger.Error().
			Int("catalog_size", len(static)).
			Msg("static catalog is approaching the dynamic ordinal base, ordinals may collide")
	}
	for _, def := range static {
		def.FunnelID = funnelID
		saved, err := catalog.UpsertStep(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert catalog step %q: %w", def.StepKey, err)
		}
		defs[saved.StepKey] = *saved
	}

	var discovered []string
	for _, key := range observedKeys {
		if _, ok := defs[key]; !ok {
			discovered = append(discovered, key)
		}
	}
	if len(discovered) == 0 {
		return defs, nil
	}
	// Deterministic assignment order regardless of map iteration upstream.
	sort.Strings(discovered)

	next, err := catalog.MaxDynamicPosition(ctx, funnelID)
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic step positions: %w", err)
	}
	if next < models.DynamicOrdinalBase-1 {
		next = models.DynamicOrdinalBase - 1
	}

	for _, key := range discovered {
		next++
		def := models.StepDefinition{
			FunnelID: funnelID,
			StepKey:  key,
			Name:     utils.TitleCaseKey(key),
			Position: next,
			Category: models.CategoryQuestion,
		}
		saved, err := catalog.UpsertStep(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("failed to create discovered step %q: %w", key, err)
		}
		defs[saved.StepKey] = *saved
		logger.Info().
			Str("step_key", key).
			Int("position", saved.Position).
			Int("first_seen_position", firstSeenPos[key]).
			Msg("registered step discovered outside the static catalog")
	}

	return defs, nil
}
