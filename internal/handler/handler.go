// File: internal/handler/handler.go
package handler

import (
	"time"

	"three-tier-lab/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	usersCacheKey      = "users:list"
	genericDBErrorText = "database unavailable"
)

var listUsers = store.ListUsers

// Options 控制 handler 的資料庫逾時、錯誤細節與快取行為
type Options struct {
	// AcquireTimeout bounds pool acquisition plus the query itself.
	AcquireTimeout time.Duration
	// VerboseErrors returns raw driver messages to the caller.
	VerboseErrors bool
	// CacheTTL <= 0 disables the users cache.
	CacheTTL time.Duration
	Log      logrus.FieldLogger
}

func (o Options) timeout() time.Duration {
	if o.AcquireTimeout <= 0 {
		return 5 * time.Second
	}
	return o.AcquireTimeout
}

func (o Options) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logrus.StandardLogger()
	}
	return o.Log
}

func (o Options) errorText(err error) string {
	if o.VerboseErrors {
		return err.Error()
	}
	return genericDBErrorText
}
