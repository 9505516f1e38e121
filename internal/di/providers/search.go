package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/logger"
	"github.com/boilergroups/groups-server/internal/search"
)

// SearchIndexHandle holds the message index. Index is nil when SEARCH_ENABLED is
// false; services then get no indexer and search requests fail validation.
type SearchIndexHandle struct {
	*search.Index
}

func (h *SearchIndexHandle) Shutdown() error {
	if h.Index == nil {
		return nil
	}
	return h.Close()
}

// ProvideSearchIndex opens the bleve index under the data path.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Message search off")
		return &SearchIndexHandle{}, nil
	}

	idx, err := search.New(search.Options{DataPath: cfg.Storage.DataPath, Logger: log.Logger})
	if err != nil {
		return nil, err
	}
	return &SearchIndexHandle{Index: idx}, nil
}

// TriggerSearchReindexIfNeeded fills an empty index from stored groups in the
// background. A store that already had messages before search was enabled, or
// a wiped index directory, both end up here.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	h := do.MustInvoke[*SearchIndexHandle](i)
	if h.Index == nil {
		return
	}
	if n, err := h.DocumentCount(); err == nil && n > 0 {
		return
	}

	groups := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)
	go func() {
		ctx := context.Background()
		indexed, err := h.Reindex(ctx, groups.ListGroups(ctx))
		if err != nil {
			log.Error("Rebuilding message index failed", "error", err, "indexed", indexed)
			return
		}
		log.Info("Message index rebuilt", "messages", indexed)
	}()
}
