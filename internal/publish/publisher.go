package publish

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/park285/cheese-chess-client/internal/obslog"
	"github.com/park285/cheese-chess-client/internal/session"
	"github.com/park285/cheese-chess-client/pkg/chessdto"
	"go.uber.org/zap"
)

// Viewer maps a snapshot to its DTO.
type Viewer interface {
	ToView(clientID string, st session.SessionState) chessdto.SessionView
}

// Publisher mirrors session snapshots to Redis from its own goroutine so the
// session loop never waits on the network.
type Publisher struct {
	store    *Store
	viewer   Viewer
	clientID string
	log      *zap.Logger

	queue   chan session.SessionState
	dropped atomic.Int64
}

func NewPublisher(store *Store, viewer Viewer, clientID string, buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 32
	}
	return &Publisher{
		store:    store,
		viewer:   viewer,
		clientID: clientID,
		log:      obslog.L().With(zap.String("component", "publish")),
		queue:    make(chan session.SessionState, buffer),
	}
}

// Observe is a session.Observer. When the queue is full the oldest pending
// snapshot is discarded.
func (p *Publisher) Observe(st session.SessionState) {
	for {
		select {
		case p.queue <- st:
			return
		default:
		}
		select {
		case <-p.queue:
			p.dropped.Add(1)
		default:
		}
	}
}

// Dropped reports how many snapshots were discarded.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Run drains the queue until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-p.queue:
			p.publish(ctx, st)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, st session.SessionState) {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.store.Save(wctx, p.clientID, p.viewer.ToView(p.clientID, st)); err != nil {
		p.log.Warn("publish_snapshot_failed",
			zap.Uint64("version", st.Version),
			zap.String("phase", string(st.Phase)),
			zap.Error(err),
		)
	}
}
