package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")
var ErrEmailTaken = errors.New("email already registered")

const uniqueViolation = "23505"

const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleDelivery = "delivery"
	RoleAdmin    = "admin"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Phone        *string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateUserParams struct {
	Name         string
	Email        string
	Phone        *string
	PasswordHash string
	Role         string
}

const userColumns = `id, name, email, phone, password_hash, role, is_active, created_at, updated_at`

const createUserQuery = `
	INSERT INTO users (name, email, phone, password_hash, role)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + userColumns

const getUserByEmailQuery = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

const getUserByIDQuery = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

const checkActiveQuery = `SELECT role, is_active FROM users WHERE id = $1`

func (r *Repository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	row := r.pool.QueryRow(ctx, createUserQuery,
		params.Name,
		strings.ToLower(params.Email),
		params.Phone,
		params.PasswordHash,
		params.Role,
	)
	user, err := scanUser(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return User{}, ErrEmailTaken
	}
	return user, err
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, getUserByEmailQuery, strings.ToLower(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func (r *Repository) GetUserByID(ctx context.Context, userID uuid.UUID) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, getUserByIDQuery, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// CheckActive implements httpkit.UserStatusChecker.
func (r *Repository) CheckActive(ctx context.Context, userID uuid.UUID) (string, error) {
	var role string
	var active bool
	err := r.pool.QueryRow(ctx, checkActiveQuery, userID).Scan(&role, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.NotFound("user not found")
	}
	if err != nil {
		return "", err
	}
	if !active {
		return "", apperr.Forbidden("account deactivated")
	}
	return role, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
