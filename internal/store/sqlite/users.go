package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/boilergroups/groups-server/internal/domain"
	"github.com/boilergroups/groups-server/internal/normalize"
	"github.com/boilergroups/groups-server/internal/store"
)

const userColumns = `id, created_at, updated_at, email, username, password_hash`

func scanUser(scanner interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		createdAt string
		updatedAt string
		hash      sql.NullString
	)
	if err := scanner.Scan(&u.ID, &createdAt, &updatedAt, &u.Email, &u.Username, &hash); err != nil {
		return nil, err
	}

	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	u.PasswordHash = hash.String
	return &u, nil
}

// CreateUser inserts a user. Returns store.ErrAlreadyExists if the id or email is taken.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at, updated_at, email, email_lower, username, username_key, password_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
		u.Email,
		normalize.Email(u.Email),
		u.Username,
		normalize.Username(u.Username),
		nullString(u.PasswordHash),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithMessage("user already exists")
	}
	return err
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("user not found")
	}
	return u, err
}

// GetUserByEmail loads a user by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email_lower = ?`, normalize.Email(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("user not found")
	}
	return u, err
}

// ListUsersByUsername returns every user with the given username.
func (s *Store) ListUsersByUsername(ctx context.Context, username string) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username_key = ? ORDER BY id`, normalize.Username(username))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
