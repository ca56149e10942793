// Package worker runs independent tasks on a bounded number of goroutines.
package worker

import (
	"context"
	"sync"
)

// Task is a unit of work. It should return promptly once ctx is done.
type Task func(ctx context.Context)

// Pool defines a simple worker pool.
type Pool interface {
	// Submit blocks until a worker takes t, or returns ctx.Err() if the
	// pool's context ends first.
	Submit(Task) error
	Stop()
}

// NewPool creates a pool with n workers. n<=0 defaults to 1.
func NewPool(ctx context.Context, n int) Pool {
	if n <= 0 {
		n = 1
	}
	p := &pool{ctx: ctx, jobs: make(chan Task)}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if job != nil {
					job(p.ctx)
				}
			}
		}()
	}
	return p
}

type pool struct {
	ctx  context.Context
	jobs chan Task
	wg   sync.WaitGroup
}

func (p *pool) Submit(t Task) error {
	select {
	case p.jobs <- t:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Stop waits for submitted tasks to finish. The pool cannot be reused.
func (p *pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

// Run executes tasks with at most n in flight and waits for all of them.
func Run(ctx context.Context, n int, tasks ...Task) error {
	p := NewPool(ctx, n)
	defer p.Stop()
	for _, t := range tasks {
		if err := p.Submit(t); err != nil {
			return err
		}
	}
	return nil
}
