package service

import (
	"context"
	"time"

	"github.com/boilergroups/groups-server/internal/domain"
	domainerrors "github.com/boilergroups/groups-server/internal/errors"
	"github.com/boilergroups/groups-server/internal/store"
)

// MigrateLegacyReactions rewrites bare user id reaction tags as likes in every
// group and returns how many tags were rewritten. It is safe to run repeatedly.
func (s *MessageService) MigrateLegacyReactions(ctx context.Context) (int, error) {
	start := time.Now()

	var pending []string
	for g, err := range s.store.ListGroups(ctx) {
		if err != nil {
			return 0, domainerrors.ServerError(err)
		}
		if g.HasLegacyReactions() {
			pending = append(pending, g.ID)
		}
	}

	total := 0
	for _, groupID := range pending {
		n := 0
		_, err := s.mutator.mutate(ctx, groupID, func(g *domain.Group) error {
			n = g.MigrateLegacyReactions()
			if n == 0 {
				return store.ErrNoChange
			}
			return nil
		})
		if err != nil {
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				continue
			}
			return total, err
		}
		total += n
	}

	if total > 0 {
		s.logger.Info("legacy reactions migrated",
			"groups", len(pending),
			"tags", total,
			"duration", time.Since(start),
		)
	}
	return total, nil
}
