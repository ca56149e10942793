package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type emptyRows struct{}

func (emptyRows) Close()                                       {}
func (emptyRows) Err() error                                   { return nil }
func (emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (emptyRows) Next() bool                                   { return false }
func (emptyRows) Scan(dest ...any) error                       { return nil }
func (emptyRows) Values() ([]any, error)                       { return nil, nil }
func (emptyRows) RawValues() [][]byte                          { return nil }
func (emptyRows) Conn() *pgx.Conn                              { return nil }

func TestFakeDBPanicsWhenUnset(t *testing.T) {
	db := &FakeDB{}
	require.Panics(t, func() { db.Query(context.Background(), "SELECT 1") })
	require.Panics(t, func() { db.Ping(context.Background()) })
	require.NotPanics(t, db.Close)
}

func TestFakeDBForwardsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var gotSQL string
	var gotDeadline bool
	closed := false
	db := &FakeDB{
		QueryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			gotSQL = sql
			_, gotDeadline = ctx.Deadline()
			return emptyRows{}, nil
		},
		PingFn:  func(context.Context) error { return errors.New("dial tcp 192.168.56.12:5432: connect: connection refused") },
		CloseFn: func() { closed = true },
	}

	rows, err := db.Query(ctx, "SELECT id FROM users ORDER BY id")
	require.NoError(t, err)
	require.False(t, rows.Next())
	require.Equal(t, "SELECT id FROM users ORDER BY id", gotSQL)
	require.True(t, gotDeadline)
	require.ErrorContains(t, db.Ping(ctx), "connection refused")
	db.Close()
	require.True(t, closed)
}
