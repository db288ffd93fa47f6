package parser

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plog "pricewatch/internal/logger"
	"pricewatch/internal/model"
)

type stubParser struct {
	name     string
	snap     model.Snapshot
	err      error
	block    bool
	panicMsg string
	calls    atomic.Int32
}

func (s *stubParser) Marketplace() string { return s.name }

func (s *stubParser) Parse(ctx context.Context, _ string) (model.Snapshot, error) {
	s.calls.Add(1)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.block {
		<-ctx.Done()
		return model.Snapshot{}, ctx.Err()
	}
	return s.snap, s.err
}

func newTestGateway(ps ...Parser) *Gateway {
	return NewGateway(NewRegistry(ps...), time.Second, 0, plog.Discard())
}

func TestRegistry_ResolveIsCaseInsensitive(t *testing.T) {
	p := &stubParser{name: "Ozon"}
	r := NewRegistry(p)

	got, ok := r.Resolve(" OZON ")
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = r.Resolve("wildberries")
	assert.False(t, ok)

	var nilRegistry *Registry
	_, ok = nilRegistry.Resolve("ozon")
	assert.False(t, ok)
}

func TestGateway_Fetch_Success(t *testing.T) {
	p := &stubParser{name: "shop", snap: model.NewSnapshot("Widget", model.Float(120), model.Float(90))}
	snap, ok := newTestGateway(p).Fetch(context.Background(), "shop", "https://shop.example/w")
	require.True(t, ok)
	assert.Equal(t, "Widget", *snap.Title)
}

func TestGateway_Fetch_UnknownMarketplaceNeverFetches(t *testing.T) {
	p := &stubParser{name: "shop", snap: model.NewSnapshot("Widget", nil, nil)}
	_, ok := newTestGateway(p).Fetch(context.Background(), "other", "https://other.example/w")
	assert.False(t, ok)
	assert.Zero(t, p.calls.Load())
}

func TestGateway_Fetch_EmptyLink(t *testing.T) {
	p := &stubParser{name: "shop", snap: model.NewSnapshot("Widget", nil, nil)}
	_, ok := newTestGateway(p).Fetch(context.Background(), "shop", "")
	assert.False(t, ok)
	assert.Zero(t, p.calls.Load())
}

func TestGateway_Fetch_MissingTitleIsNotParseable(t *testing.T) {
	p := &stubParser{name: "shop", snap: model.Snapshot{Price: model.Float(10), CardPrice: model.Float(5)}}
	_, ok := newTestGateway(p).Fetch(context.Background(), "shop", "https://shop.example/w")
	assert.False(t, ok)
}

func TestGateway_Fetch_ErrorIsNotParseable(t *testing.T) {
	p := &stubParser{name: "shop", snap: model.NewSnapshot("Widget", nil, nil), err: errors.New("503")}
	_, ok := newTestGateway(p).Fetch(context.Background(), "shop", "https://shop.example/w")
	assert.False(t, ok)
}

func TestGateway_Fetch_Timeout(t *testing.T) {
	p := &stubParser{name: "shop", block: true}
	g := NewGateway(NewRegistry(p), 20*time.Millisecond, 0, plog.Discard())

	start := time.Now()
	_, ok := g.Fetch(context.Background(), "shop", "https://shop.example/w")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGateway_Fetch_PanicIsNotParseable(t *testing.T) {
	p := &stubParser{name: "shop", panicMsg: "index out of range"}
	var (
		ok  bool
		err any
	)
	func() {
		defer func() { err = recover() }()
		_, ok = newTestGateway(p).Fetch(context.Background(), "shop", "https://shop.example/w")
	}()
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestGateway_Fetch_CancelledWhileThrottled(t *testing.T) {
	p := &stubParser{name: "shop", snap: model.NewSnapshot("Widget", nil, nil)}
	g := NewGateway(NewRegistry(p), time.Second, time.Hour, plog.Discard())

	_, ok := g.Fetch(context.Background(), "shop", "https://shop.example/a")
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok = g.Fetch(ctx, "shop", "https://shop.example/b")
	assert.False(t, ok)
	assert.Equal(t, int32(1), p.calls.Load())
}
