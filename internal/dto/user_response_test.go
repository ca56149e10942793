package dto

import (
	"testing"
	"time"

	"three-tier-lab/internal/model"

	"github.com/stretchr/testify/require"
)

func TestFormatCreatedAt(t *testing.T) {
	whole := time.Date(2025, 5, 1, 15, 4, 5, 0, time.UTC)
	require.Equal(t, "2025-05-01 15:04:05", FormatCreatedAt(whole))

	frac := time.Date(2025, 5, 1, 15, 4, 5, 120000*1000, time.UTC)
	require.Equal(t, "2025-05-01 15:04:05.120000", FormatCreatedAt(frac))

	// 不裁掉尾端的 0：.5 秒輸出為 .500000
	half := time.Date(2025, 5, 1, 15, 4, 5, int(500*time.Millisecond), time.UTC)
	require.Equal(t, "2025-05-01 15:04:05.500000", FormatCreatedAt(half))
}

func TestNewUsersResponse(t *testing.T) {
	require.NotNil(t, NewUsersResponse(nil).Users)

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	resp := NewUsersResponse([]model.User{
		{ID: 1, Username: "john_doe", Email: "john@example.com", CreatedAt: now},
		{ID: 2, Username: "jane_smith", Email: "jane@example.com", CreatedAt: now},
	})
	require.Len(t, resp.Users, 2)
	require.Equal(t, 1, resp.Users[0].ID)
	require.Equal(t, "jane_smith", resp.Users[1].Username)
	require.NotNil(t, resp.Users[1].CreatedAt)
	require.Equal(t, "2025-01-02 03:04:05", *resp.Users[1].CreatedAt)

	require.Nil(t, NewUserResponse(model.User{ID: 3}).CreatedAt)
}
