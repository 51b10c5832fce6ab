package database

import (
	"context"

	"github.com/google/uuid"
)

const userColumns = `id, email, hashed_password, full_name, role, is_active, created_at, updated_at`

func scanUser(row scanner) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.HashedPassword,
		&i.FullName,
		&i.Role,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users
WHERE lower(email) = lower($1) AND is_active = true`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const getUserByID = `SELECT ` + userColumns + ` FROM users
WHERE id = $1 AND is_active = true`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const createUser = `INSERT INTO users (email, hashed_password, full_name, role)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email          string
	HashedPassword string
	FullName       string
	Role           string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser,
		arg.Email,
		arg.HashedPassword,
		arg.FullName,
		arg.Role,
	))
}

const listUsers = `SELECT ` + userColumns + ` FROM users
WHERE is_active = true
ORDER BY full_name, email`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []User{}
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateUser = `UPDATE users
SET email = $2, full_name = $3, role = $4, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING ` + userColumns

type UpdateUserParams struct {
	ID       uuid.UUID
	Email    string
	FullName string
	Role     string
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUser,
		arg.ID,
		arg.Email,
		arg.FullName,
		arg.Role,
	))
}

const softDeleteUser = `UPDATE users
SET is_active = false, updated_at = now()
WHERE id = $1 AND is_active = true
RETURNING id`

func (q *Queries) SoftDeleteUser(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var out uuid.UUID
	err := q.db.QueryRow(ctx, softDeleteUser, id).Scan(&out)
	return out, err
}
