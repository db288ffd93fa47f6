package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunInBackground_StopWaitsForReturn(t *testing.T) {
	var finished atomic.Bool
	started := make(chan struct{})
	stop := runInBackground(context.Background(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		// a cycle still closing its store session
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})
	<-started

	err := stop()
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, finished.Load())
}

func TestRunInBackground_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := runInBackground(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()
	assert.ErrorIs(t, stop(), context.Canceled)
}
