// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/savesync/internal/metrics"
)

var errExecutorClosed = errors.New("engine executor closed")

// engineExecutor runs every Engine call on one goroutine. The engine is not
// reentrant, so nothing else may call it directly.
type engineExecutor struct {
	jobs chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newEngineExecutor() *engineExecutor {
	x := &engineExecutor{
		jobs: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go x.loop()
	return x
}

func (x *engineExecutor) loop() {
	defer close(x.done)
	for {
		select {
		case job := <-x.jobs:
			job()
		case <-x.quit:
			return
		}
	}
}

// do runs fn on the executor and waits for it. Cancellation is honoured only
// until fn has been handed over; a started engine call always completes.
func (x *engineExecutor) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}
	select {
	case x.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-x.quit:
		return errExecutorClosed
	}
	<-finished
	return nil
}

func (x *engineExecutor) close() {
	x.once.Do(func() { close(x.quit) })
	<-x.done
}

// call runs fn on x and records its duration under name.
func call[T any](ctx context.Context, x *engineExecutor, name string, fn func() T) (T, error) {
	var out T
	start := time.Now()
	err := x.do(ctx, func() { out = fn() })
	metrics.ObserveEngineCall(name, time.Since(start).Seconds())
	return out, err
}
