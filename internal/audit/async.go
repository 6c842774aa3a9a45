package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-academic-api/internal/models"
)

// entry is one queued audit write.
type entry struct {
	action   string
	entity   string
	entityID string
	status   models.AuditStatus
	metadata map[string]interface{}
}

// AsyncConfig configures the background audit pipeline.
type AsyncConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// AsyncRecorder moves audit writes off the request path. Entries are handed
// to a worker pool; when the buffer is full the write falls back to the
// wrapped recorder synchronously so no trail is lost.
type AsyncRecorder struct {
	next    Recorder
	logger  *zap.Logger
	entries chan entry
	workers int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewAsyncRecorder wraps next with a buffered worker pool.
func NewAsyncRecorder(next Recorder, cfg AsyncConfig) *AsyncRecorder {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 32
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &AsyncRecorder{
		next:    next,
		logger:  cfg.Logger,
		entries: make(chan entry, cfg.BufferSize),
		workers: cfg.Workers,
	}
}

// Start launches the workers. Safe to call once.
func (r *AsyncRecorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.started = true
	r.logger.Sugar().Infow("audit pipeline started", "workers", r.workers)
}

// Stop drains queued entries and waits for the workers to exit.
func (r *AsyncRecorder) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()

	// Flush whatever is still buffered.
	for {
		select {
		case e := <-r.entries:
			r.next.Record(context.Background(), e.action, e.entity, e.entityID, e.status, e.metadata)
		default:
			r.logger.Sugar().Infow("audit pipeline stopped")
			return
		}
	}
}

// Record implements Recorder. Never blocks the caller: a full buffer degrades
// to a synchronous write through the wrapped recorder.
func (r *AsyncRecorder) Record(ctx context.Context, action, entity, entityID string, status models.AuditStatus, metadata map[string]interface{}) {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		r.next.Record(ctx, action, entity, entityID, status, metadata)
		return
	}

	e := entry{action: action, entity: entity, entityID: entityID, status: status, metadata: metadata}
	select {
	case r.entries <- e:
	default:
		r.logger.Warn("audit buffer full, writing synchronously", zap.String("action", action))
		r.next.Record(ctx, action, entity, entityID, status, metadata)
	}
}

func (r *AsyncRecorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case e := <-r.entries:
			r.next.Record(r.ctx, e.action, e.entity, e.entityID, e.status, e.metadata)
		}
	}
}
