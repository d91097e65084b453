package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"audiolib/model"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by CreateUser for a duplicate email.
	ErrEmailTaken = errors.New("email already registered")
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUser saves the profile fields: name and profile picture.
	UpdateUser(ctx context.Context, user *model.User) error
	// ListUsers pages through all users, newest first. Genre and Search in
	// opts are ignored.
	ListUsers(ctx context.Context, opts ListOptions) ([]*model.User, int64, error)
}

// MySQLUserRepository implements UserRepository for MySQL.
type MySQLUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new MySQLUserRepository.
func NewMySQLUserRepository(db *sql.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, role, profile_picture, created_at, updated_at`

// mysqlDuplicateEntry is MySQL's ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// CreateUser adds a new user to the database.
func (r *MySQLUserRepository) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, role, profile_picture, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Name, user.Email, user.PasswordHash, string(user.Role), user.ProfilePicture, now, now)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return 0, ErrEmailTaken
		}
		return 0, fmt.Errorf("failed to execute create user statement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user: %w", err)
	}
	user.ID = id
	user.CreatedAt, user.UpdatedAt = now, now
	return id, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var role string
	var picture sql.NullString
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &picture, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	user.ProfilePicture = picture.String
	return user, nil
}

func (r *MySQLUserRepository) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user row: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (r *MySQLUserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (r *MySQLUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email = ?", email)
}

// UpdateUser writes name and profile_picture back to the row.
func (r *MySQLUserRepository) UpdateUser(ctx context.Context, user *model.User) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, profile_picture = ?, updated_at = ? WHERE id = ?`,
		user.Name, user.ProfilePicture, now, user.ID)
	if err != nil {
		return fmt.Errorf("failed to execute update user statement: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.GetUserByID(ctx, user.ID); err != nil {
			return err
		}
	}
	user.UpdatedAt = now
	return nil
}

// ListUsers pages through users, newest first.
func (r *MySQLUserRepository) ListUsers(ctx context.Context, opts ListOptions) ([]*model.User, int64, error) {
	opts = opts.Normalize()
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, opts.Limit, opts.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.User, 0, opts.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during rows iteration: %w", err)
	}
	return users, total, nil
}
