// File: internal/dto/user_response.go
package dto

import (
	"time"

	"three-tier-lab/internal/model"
)

// createdAtLayout follows Python's str(datetime): six fractional digits,
// omitted entirely when the microseconds are zero. Existing clients parse
// this form.
const (
	createdAtLayout     = "2006-01-02 15:04:05"
	createdAtLayoutFrac = "2006-01-02 15:04:05.000000"
)

// swagger:model dto.UserResponse
type UserResponse struct {
	ID        int     `json:"id" example:"1"`
	Username  string  `json:"username" example:"john_doe"`
	Email     string  `json:"email" example:"john@example.com"`
	CreatedAt *string `json:"created_at" example:"2025-05-01 15:04:05.123456"`
}

// swagger:model dto.UsersResponse
type UsersResponse struct {
	Users []UserResponse `json:"users"`
}

func FormatCreatedAt(t time.Time) string {
	if t.Nanosecond()/1000 == 0 {
		return t.Format(createdAtLayout)
	}
	return t.Format(createdAtLayoutFrac)
}

// NewUserResponse maps a row to its JSON form. A NULL created_at stays null.
func NewUserResponse(u model.User) UserResponse {
	resp := UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
	if !u.CreatedAt.IsZero() {
		ts := FormatCreatedAt(u.CreatedAt)
		resp.CreatedAt = &ts
	}
	return resp
}

func NewUsersResponse(users []model.User) UsersResponse {
	resp := UsersResponse{Users: make([]UserResponse, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, NewUserResponse(u))
	}
	return resp
}
