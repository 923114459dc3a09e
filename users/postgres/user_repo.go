// Package postgres is the Postgres-backed user directory.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	errs "github.com/jrsteele09/go-recipe-auth/internal/errors"
	"github.com/jrsteele09/go-recipe-auth/users"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

const (
	selectUserColumns = `SELECT id::text, email, full_name, password_hash, avatar, bio, created_at, updated_at FROM users`

	findByEmailSQL = selectUserColumns + ` WHERE email = $1`
	findByIDSQL    = selectUserColumns + ` WHERE id = $1`

	insertUserSQL = `INSERT INTO users (id, email, full_name, password_hash, avatar, bio)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`
)

// DB is the subset of pgxpool.Pool used by the repository
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ users.Repo = (*UserRepo)(nil)

// UserRepo implements users.Repo on a pgx pool. Email uniqueness is enforced by the
// users_email_key unique index, so concurrent registrations race safely.
type UserRepo struct {
	db DB
}

func NewUserRepo(db DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) FindByEmail(ctx context.Context, normalizedEmail string) (*users.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, findByEmailSQL, normalizedEmail))
	if err != nil {
		return nil, errs.Wrapf(err, "[UserRepo.FindByEmail]")
	}
	return u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*users.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.Wrapf(users.ErrNotFound, "[UserRepo.FindByID] malformed id")
	}
	u, err := scanUser(r.db.QueryRow(ctx, findByIDSQL, id))
	if err != nil {
		return nil, errs.Wrapf(err, "[UserRepo.FindByID]")
	}
	return u, nil
}

func (r *UserRepo) Insert(ctx context.Context, user *users.User) (*users.User, error) {
	if user == nil {
		return nil, errors.New("[UserRepo.Insert] nil user")
	}
	stored := user.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	err := r.db.QueryRow(ctx, insertUserSQL,
		stored.ID, stored.Email, stored.FullName, stored.PasswordHash, stored.Avatar, stored.Bio,
	).Scan(&stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, errs.Wrapf(users.ErrConflict, "[UserRepo.Insert] %s", pgErr.ConstraintName)
		}
		return nil, errs.Wrapf(err, "[UserRepo.Insert]")
	}
	return stored, nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Avatar, &u.Bio, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
