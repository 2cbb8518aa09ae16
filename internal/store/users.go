package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-commerce-api/internal/auth"
	"github.com/safar/go-commerce-api/internal/database"
	"github.com/safar/go-commerce-api/internal/models"
)

type RegisterUserRequest struct {
	Username    string
	Email       string
	Password    string
	PhoneNumber string
	Address     string
	BcryptCost  int
}

// RegisterUser creates a user with a bcrypt-hashed password and the default
// Customer role. Roles are a fixed set seeded by migration; registration only
// links the user to one.
func RegisterUser(ctx context.Context, db *sql.DB, req RegisterUserRequest) (*models.User, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", database.ErrValidation)
	}

	hash, err := auth.HashPassword(req.Password, req.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO users (username, email, password_hash, phone_number, address, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
			 RETURNING id, username, email, phone_number, address, created_at, updated_at, version`,
			req.Username, req.Email, hash, req.PhoneNumber, req.Address).Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.PhoneNumber,
			&user.Address,
			&user.CreatedAt,
			&user.UpdatedAt,
			&user.Version,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return database.ErrDuplicateUser
			}
			return fmt.Errorf("create user: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id)
			 SELECT $1, id FROM roles WHERE name = $2`,
			user.ID, auth.RoleCustomer)
		if err != nil {
			return fmt.Errorf("assign default role: %w", err)
		}

		user.Roles = []string{auth.RoleCustomer}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func GetUser(ctx context.Context, db *sql.DB, id int64) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, phone_number, address, created_at, updated_at, version
		 FROM users
		 WHERE id = $1`,
		id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.PhoneNumber,
		&user.Address,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	roles, err := getUserRoles(ctx, db, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*models.User, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = $1`, username).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return GetUser(ctx, db, id)
}

func getUserRoles(ctx context.Context, db *sql.DB, userID int64) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT r.name
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1
		 ORDER BY r.name`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("get user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return roles, nil
}

// GrantRole links an existing role to a user. Unknown role names are rejected;
// the role set is fixed at migration time.
func GrantRole(ctx context.Context, db *sql.DB, userID int64, role string) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id)
		 SELECT $1, id FROM roles WHERE name = $2
		 ON CONFLICT DO NOTHING`,
		userID, role)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return database.ErrUserNotFound
		}
		return fmt.Errorf("grant role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Either the role name is unknown or the grant already exists; the
		// latter is fine, so re-check the role.
		var exists bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1)`, role).Scan(&exists); err != nil {
			return fmt.Errorf("check role exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: unknown role %q", database.ErrValidation, role)
		}
	}

	return nil
}

func UpdateProfile(ctx context.Context, db *sql.DB, userID int64, email, phoneNumber, address string) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRowContext(ctx,
		`UPDATE users
		 SET email = $1, phone_number = $2, address = $3, updated_at = NOW(), version = version + 1
		 WHERE id = $4
		 RETURNING id, username, email, phone_number, address, created_at, updated_at, version`,
		email, phoneNumber, address, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PhoneNumber,
		&user.Address,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrUserNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, database.ErrDuplicateUser
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	roles, err := getUserRoles(ctx, db, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}
