// Package search keeps a full-text index of group messages.
package search

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/boilergroups/groups-server/internal/domain"
)

// mappingVersion is bumped whenever buildIndexMapping changes. A mismatch on
// startup drops and recreates the index.
const mappingVersion = "1"

const batchSize = 500

// Index wraps a Bleve index of messages. Safe for concurrent use.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the index.
type Options struct {
	// DataPath is the directory holding the index. Empty keeps it in memory.
	DataPath string
	Logger   *slog.Logger
}

// New opens the index under opts.DataPath, recreating it when the mapping
// version changed or it cannot be opened.
func New(opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if opts.DataPath == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create in-memory index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}

	indexPath := filepath.Join(opts.DataPath, "messages.bleve")
	versionPath := filepath.Join(opts.DataPath, "messages.version")

	var idx bleve.Index
	if _, err := os.Stat(indexPath); err == nil {
		version, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil || string(version) != mappingVersion:
			logger.Info("search mapping changed, rebuilding index",
				"old_version", string(version),
				"new_version", mappingVersion,
			)
		default:
			idx, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("failed to open search index, recreating", "path", indexPath, "error", err)
			}
		}
		if idx == nil {
			if err := os.RemoveAll(indexPath); err != nil {
				return nil, fmt.Errorf("remove old index: %w", err)
			}
		}
	}

	if idx == nil {
		var err error
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write search version file", "error", err)
		}
		logger.Info("created search index", "path", indexPath)
	} else {
		logger.Info("opened search index", "path", indexPath)
	}

	return &Index{index: idx, path: indexPath, logger: logger}, nil
}

// Close releases the index.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexMessage adds or replaces one message.
func (s *Index) IndexMessage(groupID string, m *domain.Message) error {
	doc := NewMessageDocument(groupID, m)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID(), doc.ToMap())
}

// DeleteMessage removes one message.
func (s *Index) DeleteMessage(groupID, messageID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(DocumentID(groupID, messageID))
}

// IndexGroup indexes every non-status message of g in batches.
func (s *Index) IndexGroup(g *domain.Group) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexGroupLocked(g)
}

func (s *Index) indexGroupLocked(g *domain.Group) error {
	for start := 0; start < len(g.Messages); start += batchSize {
		end := min(start+batchSize, len(g.Messages))
		batch := s.index.NewBatch()
		for i := start; i < end; i++ {
			m := &g.Messages[i]
			if m.IsStatus() {
				continue
			}
			doc := NewMessageDocument(g.ID, m)
			if err := batch.Index(doc.ID(), doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID(), err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch for group %s: %w", g.ID, err)
		}
	}
	return nil
}

// DeleteGroup removes every message of groupID.
func (s *Index) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for {
		req := bleve.NewSearchRequestOptions(groupQuery(groupID), batchSize, 0, false)
		res, err := s.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("find group documents: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := s.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("delete group documents: %w", err)
		}
	}
}

// DocumentCount returns the number of indexed messages.
func (s *Index) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Reindex indexes every group yielded by groups. Existing documents are
// replaced, documents of messages that no longer exist are left alone.
func (s *Index) Reindex(ctx context.Context, groups iter.Seq2[*domain.Group, error]) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for g, err := range groups {
		if err != nil {
			return n, err
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := s.indexGroupLocked(g); err != nil {
			return n, err
		}
		n++
	}
	s.logger.Info("search index rebuilt", "groups", n)
	return n, nil
}
