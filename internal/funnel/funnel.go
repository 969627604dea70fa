package funnel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-crawler/internal/crawler"
	"github.com/JakeFAU/community-crawler/internal/metrics"
	"github.com/JakeFAU/community-crawler/internal/telemetry"
)

// ErrClosed is returned by Send once shutdown has begun.
var ErrClosed = errors.New("write funnel closed")

const defaultBufferSize = 4096

// Config controls buffering for the Funnel.
//   - BufferSize: capacity of the message channel (default 4096).
//   - BaseContext: parent context for store calls (defaults to context.Background()).
//   - Logger: optional structured logger.
type Config struct {
	BufferSize  int
	BaseContext context.Context
	Logger      *zap.Logger
}

// Stats counts bundles by outcome.
type Stats struct {
	Applied int64
	Failed  int64
}

// Funnel is the single writer for a crawler.Store.
type Funnel struct {
	cfg    Config
	store  crawler.Store
	msgs   chan Message
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	applied   atomic.Int64
	failed    atomic.Int64

	communities map[string]int64
}

// New starts the consumer goroutine for store.
func New(store crawler.Store, cfg Config) *Funnel {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Funnel{
		cfg:         cfg,
		store:       store,
		msgs:        make(chan Message, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		communities: make(map[string]int64),
	}
	go f.run()
	return f
}

// Send enqueues msg, blocking while the buffer is full. Sending Shutdown
// starts the same drain as Close without waiting for it.
func (f *Funnel) Send(ctx context.Context, msg Message) error {
	if _, ok := msg.(Shutdown); ok {
		f.shutdown()
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	select {
	case f.msgs <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("funnel send: %w", ctx.Err())
	}
}

// Close stops accepting messages, applies everything already queued, and
// waits for the consumer to exit. It is safe to call more than once.
func (f *Funnel) Close(ctx context.Context) error {
	f.shutdown()
	select {
	case <-f.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("funnel close wait: %w", ctx.Err())
	}
}

// Stats reports bundle outcomes so far.
func (f *Funnel) Stats() Stats {
	return Stats{Applied: f.applied.Load(), Failed: f.failed.Load()}
}

func (f *Funnel) shutdown() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.stopCh)
	})
}

func (f *Funnel) run() {
	defer close(f.doneCh)
	for {
		select {
		case msg := <-f.msgs:
			f.apply(msg)
		case <-f.stopCh:
			for {
				select {
				case msg := <-f.msgs:
					f.apply(msg)
				default:
					return
				}
			}
		}
	}
}

func (f *Funnel) apply(msg Message) {
	ctx := f.cfg.BaseContext
	switch m := msg.(type) {
	case BeginCommunity:
		if _, err := f.communityID(ctx, m.Name); err != nil {
			f.logger.Warn("community registration failed", zap.String("community", m.Name), zap.Error(err))
		}
	case ItemBundle:
		ctx, span := telemetry.StartSpan(ctx, "funnel.apply",
			attribute.String("community", m.Community),
			attribute.String("item_id", m.Item.ID),
		)
		err := f.applyBundle(ctx, m)
		span.End()
		metrics.ObserveWrite(err == nil)
		if err != nil {
			f.failed.Add(1)
			f.logger.Warn("bundle write failed",
				zap.String("community", m.Community),
				zap.String("item_id", m.Item.ID),
				zap.Error(err),
			)
			return
		}
		f.applied.Add(1)
	}
}

func (f *Funnel) applyBundle(ctx context.Context, b ItemBundle) error {
	communityID, err := f.communityID(ctx, b.Community)
	if err != nil {
		return err
	}
	item := b.Item
	item.CommunityID = communityID
	if err := f.store.UpsertItem(ctx, item); err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	for _, media := range b.Media {
		if err := f.store.UpsertMedia(ctx, media); err != nil {
			return fmt.Errorf("upsert media %s: %w", media.URL, err)
		}
	}
	for _, reply := range b.Replies {
		if err := f.store.UpsertReply(ctx, reply); err != nil {
			return fmt.Errorf("upsert reply %s: %w", reply.ID, err)
		}
		snap := crawler.ReplySnapshot{
			ReplyID:   reply.ID,
			ScanID:    b.Snapshot.ScanID,
			Score:     reply.Score,
			CreatedAt: reply.CreatedAt,
		}
		if err := f.store.PutReplySnapshot(ctx, snap); err != nil {
			return fmt.Errorf("reply snapshot %s: %w", reply.ID, err)
		}
	}
	if err := f.store.PutItemSnapshot(ctx, b.Snapshot); err != nil {
		return fmt.Errorf("item snapshot: %w", err)
	}
	return nil
}

// communityID resolves name through a local cache backed by the store's
// get-or-create. Only the consumer goroutine touches the cache.
func (f *Funnel) communityID(ctx context.Context, name string) (int64, error) {
	if id, ok := f.communities[name]; ok {
		return id, nil
	}
	id, err := f.store.EnsureCommunity(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("ensure community %s: %w", name, err)
	}
	f.communities[name] = id
	return id, nil
}
