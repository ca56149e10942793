package store

import (
	"context"
	"fmt"
	"time"

	"three-tier-lab/internal/database"
	"three-tier-lab/internal/model"
)

// ListUsers returns every row of users in insertion (id) order.
func ListUsers(ctx context.Context, db database.DB) ([]model.User, error) {
	rows, err := db.Query(ctx,
		`SELECT id, username, email, created_at
		 FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var (
			u         model.User
			createdAt *time.Time
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &createdAt); err != nil {
			return nil, fmt.Errorf("ListUsers: %w", err)
		}
		if createdAt != nil {
			u.CreatedAt = *createdAt
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListUsers: %w", err)
	}
	return users, nil
}
