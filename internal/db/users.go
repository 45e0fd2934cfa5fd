package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"relay/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(username, email, passwordHash string, role models.Role) (*models.User, error) {
	id, err := GenerateID("usr")
	if err != nil {
		return nil, fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.Exec(
		`INSERT INTO users (id, username, email, password_hash, display_name, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, username, email, passwordHash, username, string(role), now, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return &models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  username,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    &now,
	}, nil
}

func (r *UserRepository) FindByID(id string) (*models.User, error) {
	return r.findOne(`SELECT id, username, email, password_hash, display_name, role, avatar_url, created_at, updated_at
		FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByUsername(username string) (*models.User, error) {
	return r.findOne(`SELECT id, username, email, password_hash, display_name, role, avatar_url, created_at, updated_at
		FROM users WHERE username = ? COLLATE NOCASE`, username)
}

func (r *UserRepository) FindByEmail(email string) (*models.User, error) {
	return r.findOne(`SELECT id, username, email, password_hash, display_name, role, avatar_url, created_at, updated_at
		FROM users WHERE email = ? COLLATE NOCASE`, email)
}

func (r *UserRepository) FindAll() ([]*models.User, error) {
	rows, err := r.db.Query(
		`SELECT id, username, display_name, role, avatar_url, created_at, updated_at FROM users ORDER BY username COLLATE NOCASE`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		var role string
		var updatedAt sql.NullTime

		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &role, &u.AvatarURL, &u.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}

		u.Role = models.Role(role)
		u.UpdatedAt = nullTimeToPtr(updatedAt)
		users = append(users, &u)
	}

	return users, rows.Err()
}

func (r *UserRepository) UpdateProfile(id string, displayName string, avatarURL *string) error {
	result, err := r.db.Exec(
		`UPDATE users SET display_name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		displayName, avatarURL, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateRole(id string, role models.Role) error {
	result, err := r.db.Exec(
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		string(role), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdatePasswordHash(id, passwordHash string) error {
	result, err := r.db.Exec(
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) IsUsernameAvailable(username string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ? COLLATE NOCASE`, username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking username availability: %w", err)
	}
	return count == 0, nil
}

func (r *UserRepository) findOne(query string, args ...any) (*models.User, error) {
	var u models.User
	var role string
	var updatedAt sql.NullTime

	err := r.db.QueryRow(query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&role,
		&u.AvatarURL,
		&u.CreatedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.Role = models.Role(role)
	u.UpdatedAt = nullTimeToPtr(updatedAt)

	return &u, nil
}
