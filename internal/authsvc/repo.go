package authsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type User struct {
	Email        string
	PasswordHash string
}

type UserRepo interface {
	GetUser(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, email, passwordHash string) error
}

type pgRepo struct {
	dbpool *pgxpool.Pool
}

func NewRepo(ctx context.Context, databaseDSN string) (UserRepo, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &pgRepo{dbpool: pool}, nil
}

func (r *pgRepo) GetUser(ctx context.Context, email string) (User, error) {
	var u User
	err := r.dbpool.QueryRow(ctx,
		"SELECT email, password FROM users WHERE email = $1", email,
	).Scan(&u.Email, &u.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user %q: %w", email, err)
	}
	return u, nil
}

func (r *pgRepo) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := r.dbpool.Exec(ctx,
		"INSERT INTO users (email, password) VALUES ($1, $2)", email, passwordHash,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user %q: %w", email, err)
	}
	return nil
}
