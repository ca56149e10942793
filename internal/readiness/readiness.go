// Package readiness gates provisioning stages on their dependencies being
// reachable, retrying with exponential backoff until a deadline.
package readiness

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// Probe returns nil once the dependency is ready.
type Probe func(ctx context.Context) error

type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	// AttemptTimeout bounds a single probe call.
	AttemptTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      2 * time.Minute,
		AttemptTimeout:  5 * time.Second,
	}
}

var (
	dialer     = &net.Dialer{}
	httpClient = &http.Client{}
	pgConnect  = pgx.Connect
)

// TCP succeeds when addr accepts a connection.
func TCP(addr string) Probe {
	return func(ctx context.Context) error {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// HTTP succeeds when GET url answers with want.
func HTTP(url string, want int) Probe {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != want {
			return fmt.Errorf("GET %s: status %d, want %d", url, resp.StatusCode, want)
		}
		return nil
	}
}

// Postgres succeeds when dsn accepts a login and answers a ping.
func Postgres(dsn string) Probe {
	return func(ctx context.Context) error {
		conn, err := pgConnect(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close(context.Background())
		return conn.Ping(ctx)
	}
}

// Wait runs probe until it succeeds, the policy's MaxElapsed passes, or ctx
// is done. A MaxElapsed of zero or less allows a single attempt. The last
// probe error is returned on failure.
func Wait(ctx context.Context, name string, probe Probe, p Policy, log logrus.FieldLogger) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsed
	var bo backoff.BackOff = b
	if p.MaxElapsed <= 0 {
		// backoff 把 0 當成永不放棄
		bo = &backoff.StopBackOff{}
	}

	attempt := 0
	op := func() error {
		attempt++
		actx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		return probe(actx)
	}
	notify := func(err error, next time.Duration) {
		log.WithFields(logrus.Fields{
			"probe":   name,
			"attempt": attempt,
			"retry":   next.String(),
		}).WithError(err).Info("not ready")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		return fmt.Errorf("%s not ready after %d attempts: %w", name, attempt, err)
	}
	log.WithFields(logrus.Fields{"probe": name, "attempt": attempt}).Info("ready")
	return nil
}
