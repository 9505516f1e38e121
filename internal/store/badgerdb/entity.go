package badgerdb

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/boilergroups/groups-server/internal/store"
)

// Entity provides typed CRUD over JSON records sharing a key prefix, with
// secondary indexes maintained in the same transaction as the record.
type Entity[T any] struct {
	db      *badger.DB
	prefix  string
	indexes []Index[T]
}

// Index is a secondary index on an entity. Unique indexes map one value to one id;
// the others map a value to any number of ids.
type Index[T any] struct {
	name      string
	keyGen    func(*T) []string
	transform func(string) string
	unique    bool
}

// NewEntity creates an Entity for T stored under prefix.
func NewEntity[T any](db *badger.DB, prefix string) *Entity[T] {
	return &Entity[T]{db: db, prefix: prefix}
}

// WithUniqueIndex adds an index whose values may belong to one record only.
// transform, when set, is applied to lookup values.
func (e *Entity[T]) WithUniqueIndex(name string, keyGen func(*T) []string, transform func(string) string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen, transform: transform, unique: true})
	return e
}

// WithIndex adds a non-unique index.
func (e *Entity[T]) WithIndex(name string, keyGen func(*T) []string, transform func(string) string) *Entity[T] {
	e.indexes = append(e.indexes, Index[T]{name: name, keyGen: keyGen, transform: transform})
	return e
}

func (e *Entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

// indexPrefix is the key prefix shared by every entry for value in idx.
func (e *Entity[T]) indexPrefix(idx Index[T], value string) string {
	return e.prefix + "idx:" + idx.name + ":" + value
}

func (e *Entity[T]) indexKey(idx Index[T], value, id string) []byte {
	if idx.unique {
		return []byte(e.indexPrefix(idx, value))
	}
	// NUL cannot occur in emails or ids, so it cleanly ends the value.
	return []byte(e.indexPrefix(idx, value) + "\x00" + id)
}

func (e *Entity[T]) lookupIndex(name string) (Index[T], bool) {
	for _, idx := range e.indexes {
		if idx.name == name {
			return idx, true
		}
	}
	return Index[T]{}, false
}

// Create stores a new record. Returns store.ErrAlreadyExists when id or a unique
// index value is taken.
func (e *Entity[T]) Create(ctx context.Context, id string, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(e.key(id))
		if err == nil {
			return store.ErrAlreadyExists.Withf("%s%s already exists", e.prefix, id)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check existing key: %w", err)
		}
		return e.put(txn, id, nil, entity)
	})
}

// Get loads the record with id. Returns store.ErrNotFound when absent.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *T
	err := e.db.View(func(txn *badger.Txn) error {
		v, err := e.get(txn, id)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Entity[T]) get(txn *badger.Txn, id string) (*T, error) {
	item, err := txn.Get(e.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound.Withf("%s%s not found", e.prefix, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	var entity T
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entity)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	return &entity, nil
}

// put writes entity and moves its index entries from old (nil on create).
func (e *Entity[T]) put(txn *badger.Txn, id string, old, entity *T) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}

	for _, idx := range e.indexes {
		stale := map[string]bool{}
		if old != nil {
			for _, v := range idx.keyGen(old) {
				stale[v] = true
			}
		}
		fresh := idx.keyGen(entity)
		for _, v := range fresh {
			if stale[v] {
				delete(stale, v)
				continue
			}
			if idx.unique {
				if _, err := txn.Get(e.indexKey(idx, v, id)); err == nil {
					return store.ErrAlreadyExists.Withf("%s %q already in use", idx.name, v)
				} else if !errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("check index key: %w", err)
				}
			}
			if err := txn.Set(e.indexKey(idx, v, id), []byte(id)); err != nil {
				return fmt.Errorf("set index key: %w", err)
			}
		}
		for v := range stale {
			if err := txn.Delete(e.indexKey(idx, v, id)); err != nil {
				return fmt.Errorf("delete index key: %w", err)
			}
		}
	}

	if err := txn.Set(e.key(id), data); err != nil {
		return fmt.Errorf("set key: %w", err)
	}
	return nil
}

// Mutate loads the record, passes it to fn and writes the result in a single
// transaction. fn returning false leaves the record untouched. Transactions that
// lose a write conflict are retried with backoff.
func (e *Entity[T]) Mutate(ctx context.Context, id string, fn func(*T) (bool, error)) (*T, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var out *T
		err := e.db.Update(func(txn *badger.Txn) error {
			old, err := e.get(txn, id)
			if err != nil {
				return err
			}
			cur, err := e.get(txn, id)
			if err != nil {
				return err
			}
			write, err := fn(cur)
			if err != nil {
				return err
			}
			out = cur
			if !write {
				return nil
			}
			return e.put(txn, id, old, cur)
		})
		if errors.Is(err, badger.ErrConflict) {
			if attempt >= store.MaxMutateAttempts {
				return nil, store.ErrConflict.WithCause(err)
			}
			if err := store.Backoff(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Delete removes the record and its index entries. Returns store.ErrNotFound when
// the record does not exist.
func (e *Entity[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		entity, err := e.get(txn, id)
		if err != nil {
			return err
		}
		for _, idx := range e.indexes {
			for _, v := range idx.keyGen(entity) {
				if err := txn.Delete(e.indexKey(idx, v, id)); err != nil {
					return fmt.Errorf("delete index key: %w", err)
				}
			}
		}
		if err := txn.Delete(e.key(id)); err != nil {
			return fmt.Errorf("delete key: %w", err)
		}
		return nil
	})
}

// GetByIndex resolves a unique index value to its record.
func (e *Entity[T]) GetByIndex(ctx context.Context, name, value string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, ok := e.lookupIndex(name)
	if !ok || !idx.unique {
		return nil, fmt.Errorf("no unique index %q on %s", name, e.prefix)
	}
	if idx.transform != nil {
		value = idx.transform(value)
	}

	var out *T
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.indexKey(idx, value, ""))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound.Withf("no %s%s %q", e.prefix, name, value)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		out, err = e.get(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByIndex returns every record indexed under value, in id order.
func (e *Entity[T]) ListByIndex(ctx context.Context, name, value string) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, ok := e.lookupIndex(name)
	if !ok {
		return nil, fmt.Errorf("no index %q on %s", name, e.prefix)
	}
	if idx.transform != nil {
		value = idx.transform(value)
	}
	prefix := []byte(e.indexPrefix(idx, value))
	if !idx.unique {
		prefix = append(prefix, 0)
	}

	var out []*T
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			v, err := e.get(txn, string(id))
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List iterates every record under the prefix.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = e.db.View(func(txn *badger.Txn) error {
			prefix := []byte(e.prefix)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return err
				}
				if strings.HasPrefix(string(it.Item().Key()[len(prefix):]), "idx:") {
					continue
				}
				var entity T
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &entity)
				}); err != nil {
					yield(nil, fmt.Errorf("unmarshal entity: %w", err))
					return err
				}
				if !yield(&entity, nil) {
					return nil
				}
			}
			return nil
		})
	}
}
