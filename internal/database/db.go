package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ DB = (*pgxpool.Pool)(nil)

// DB is the subset of *pgxpool.Pool used by the API. Each call acquires a
// connection from the pool and releases it when the call (or the returned
// Rows) is done.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// FakeDB 供測試注入；未設定的方法被呼叫時 panic，Close 除外
type FakeDB struct {
	QueryFn func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	PingFn  func(ctx context.Context) error
	CloseFn func()
}

func (f *FakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.QueryFn != nil {
		return f.QueryFn(ctx, sql, args...)
	}
	panic("unexpected Query")
}

func (f *FakeDB) Ping(ctx context.Context) error {
	if f.PingFn != nil {
		return f.PingFn(ctx)
	}
	panic("unexpected Ping")
}

func (f *FakeDB) Close() {
	if f.CloseFn != nil {
		f.CloseFn()
	}
}
