package sqlite

import (
	"context"
	"database/sql"
	"encoding/json/v2"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/store"
)

func groupNotFound(id string) error {
	return store.ErrNotFound.Withf("group %s not found", id)
}

func decodeGroup(doc []byte) (*domain.Group, error) {
	var g domain.Group
	if err := json.Unmarshal(doc, &g); err != nil {
		return nil, fmt.Errorf("unmarshal group: %w", err)
	}
	g.Normalize()
	return &g, nil
}

// CreateGroup inserts a group and its member rows.
func (s *Store) CreateGroup(ctx context.Context, g *domain.Group) error {
	store.PrepareNewGroup(g, s.now())
	doc, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal group: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO study_groups (id, name, is_dm, version, created_at, updated_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, boolToInt(g.IsDM), g.Version, formatTime(g.CreatedAt), formatTime(g.UpdatedAt), doc)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.Withf("group %s already exists", g.ID)
	}
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	if err := replaceMembers(ctx, tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceMembers(ctx context.Context, tx *sql.Tx, g *domain.Group) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, g.ID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	for _, m := range g.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, email) VALUES (?, ?)`, g.ID, m); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return nil
}

// GetGroup loads a group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM study_groups WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, groupNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return decodeGroup(doc)
}

// ListGroups iterates every group in creation order.
func (s *Store) ListGroups(ctx context.Context) iter.Seq2[*domain.Group, error] {
	return func(yield func(*domain.Group, error) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT doc FROM study_groups ORDER BY created_at, id`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var doc []byte
			if err := rows.Scan(&doc); err != nil {
				yield(nil, err)
				return
			}
			g, err := decodeGroup(doc)
			if !yield(g, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// ListGroupsForMember returns the groups email belongs to.
func (s *Store) ListGroupsForMember(ctx context.Context, email string) ([]*domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.doc FROM study_groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.email = ?
		ORDER BY g.created_at, g.id`, normalize.Email(email))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*domain.Group
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		g, err := decodeGroup(doc)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// MutateGroup applies fn inside an immediate transaction. The version guard on the
// update catches writers that bypassed the transaction lock.
func (s *Store) MutateGroup(ctx context.Context, id string, fn store.MutateFunc) (*domain.Group, error) {
	for attempt := 1; ; attempt++ {
		g, err := s.mutateOnce(ctx, id, fn)
		if !errors.Is(err, errVersionMismatch) {
			return g, err
		}
		if attempt >= store.MaxMutateAttempts {
			return nil, store.ErrConflict.WithCause(err)
		}
		if err := store.Backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

var errVersionMismatch = errors.New("group version changed")

func (s *Store) mutateOnce(ctx context.Context, id string, fn store.MutateFunc) (*domain.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var doc []byte
	err = tx.QueryRowContext(ctx, `SELECT doc FROM study_groups WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, groupNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	g, err := decodeGroup(doc)
	if err != nil {
		return nil, err
	}

	prevVersion := g.Version
	prevMembers := append([]string(nil), g.Members...)
	write, err := store.ApplyMutation(g, fn, s.now())
	if err != nil || !write {
		return g, err
	}

	doc, err = json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal group: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE study_groups SET name = ?, is_dm = ?, version = ?, updated_at = ?, doc = ?
		WHERE id = ? AND version = ?`,
		g.Name, boolToInt(g.IsDM), g.Version, formatTime(g.UpdatedAt), doc, id, prevVersion)
	if err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, errVersionMismatch
	}

	if !slices.Equal(prevMembers, g.Members) {
		if err := replaceMembers(ctx, tx, g); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

// DeleteGroup removes a group; member rows cascade.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM study_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return groupNotFound(id)
	}
	return nil
}
