// Package audit writes the financial audit trail and the access log.
//
// Writes are queued and performed by a background worker so that a slow or
// failing audit store never delays or reverses the operation being audited.
// Failures are logged at error level and are not reported to the caller.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"fund-balance-service/internal/models"
)

// Store is the persistence the recorder writes through.
type Store interface {
	CreateAuditEntry(ctx context.Context, entry *models.FinancialAuditEntry) error
	CreateAccessLog(ctx context.Context, entry *models.FinancialAccessLog) error
	ListAuditEntries(ctx context.Context, resourceType, resourceID string) ([]models.FinancialAuditEntry, error)
}

// Entry describes one state change. PreviousValue, NewValue and Metadata are
// marshalled to JSON; nil values are stored as NULL.
type Entry struct {
	UserID        string
	Operation     string
	ResourceType  string
	ResourceID    string
	PreviousValue any
	NewValue      any
	Metadata      map[string]any
	IP            string
}

type AccessEntry struct {
	UserID    string
	Result    string
	Operation string
	Role      string
	Metadata  map[string]any
	IP        string
}

type job struct {
	entry  *models.FinancialAuditEntry
	access *models.FinancialAccessLog
}

type Recorder struct {
	store        Store
	log          *zap.Logger
	queue        chan job
	writeTimeout time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	done    chan struct{}
}

func NewRecorder(store Store, log *zap.Logger, queueSize int, writeTimeout time.Duration) *Recorder {
	r := &Recorder{
		store:        store,
		log:          log.Named("audit"),
		queue:        make(chan job, queueSize),
		writeTimeout: writeTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for j := range r.queue {
		r.write(j)
	}
}

// Record queues an audit entry. It never blocks on the store and never
// fails; the entry's created_at is taken here so history stays in call
// order even if writes complete out of order.
func (r *Recorder) Record(e Entry) {
	row := &models.FinancialAuditEntry{
		UserID:       e.UserID,
		Operation:    e.Operation,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IPAddress:    e.IP,
		CreatedAt:    r.now(),
	}

	var err error
	if row.PreviousValue, err = marshal(e.PreviousValue); err != nil {
		r.logDropped(e.Operation, e.ResourceType, e.ResourceID, err)
		return
	}
	if row.NewValue, err = marshal(e.NewValue); err != nil {
		r.logDropped(e.Operation, e.ResourceType, e.ResourceID, err)
		return
	}
	if row.Metadata, err = marshalMap(e.Metadata); err != nil {
		r.logDropped(e.Operation, e.ResourceType, e.ResourceID, err)
		return
	}

	r.enqueue(job{entry: row})
}

// LogAccess queues an access log row with the same guarantees as Record.
func (r *Recorder) LogAccess(e AccessEntry) {
	row := &models.FinancialAccessLog{
		UserID:    e.UserID,
		Result:    e.Result,
		Operation: e.Operation,
		Role:      e.Role,
		IPAddress: e.IP,
		CreatedAt: r.now(),
	}

	metadata, err := marshalMap(e.Metadata)
	if err != nil {
		r.log.Error("failed to encode access log metadata",
			zap.String("user_id", e.UserID),
			zap.String("operation", e.Operation),
			zap.Error(err))
		return
	}
	row.Metadata = metadata

	r.enqueue(job{access: row})
}

// History returns every audit entry for one resource, oldest first. Unlike
// the writes this is synchronous and its errors are returned.
func (r *Recorder) History(ctx context.Context, resourceType, resourceID string) ([]models.FinancialAuditEntry, error) {
	return r.store.ListAuditEntries(ctx, resourceType, resourceID)
}

func (r *Recorder) enqueue(j job) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.log.Error("audit recorder closed, entry dropped", jobFields(j)...)
		return
	}

	select {
	case r.queue <- j:
	default:
		// Queue full: write on a detached goroutine rather than block the caller.
		r.log.Warn("audit queue full, writing out of band", jobFields(j)...)
		r.pending.Add(1)
		go func() {
			defer r.pending.Done()
			r.write(j)
		}()
	}
}

func (r *Recorder) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	var err error
	if j.entry != nil {
		err = r.store.CreateAuditEntry(ctx, j.entry)
	} else {
		err = r.store.CreateAccessLog(ctx, j.access)
	}
	if err != nil {
		r.log.Error("failed to write audit record", append(jobFields(j), zap.Error(err))...)
	}
}

// Close stops accepting entries and waits until everything queued has been
// written or ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		<-r.done
		r.pending.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		r.log.Error("audit queue not drained before shutdown", zap.Int("remaining", len(r.queue)))
		return ctx.Err()
	}
}

func (r *Recorder) logDropped(operation, resourceType, resourceID string, err error) {
	r.log.Error("failed to encode audit entry",
		zap.String("operation", operation),
		zap.String("resource_type", resourceType),
		zap.String("resource_id", resourceID),
		zap.Error(err))
}

func jobFields(j job) []zap.Field {
	if j.entry != nil {
		return []zap.Field{
			zap.String("kind", "audit"),
			zap.String("user_id", j.entry.UserID),
			zap.String("operation", j.entry.Operation),
			zap.String("resource_type", j.entry.ResourceType),
			zap.String("resource_id", j.entry.ResourceID),
		}
	}
	return []zap.Field{
		zap.String("kind", "access"),
		zap.String("user_id", j.access.UserID),
		zap.String("operation", j.access.Operation),
		zap.String("result", j.access.Result),
	}
}

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func marshalMap(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
