package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nftstake/core/events"
	"nftstake/observability/metrics"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultQueueSize = 1024
	defaultLimit     = 100
	maxLimit         = 1000
)

var ErrArchiveClosed = errors.New("eventlog: archive closed")

// Entry is one archived ledger event.
type Entry struct {
	ID         uint      `gorm:"primaryKey"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"index"`
	Time       int64     `gorm:"index"`
	Owner      string    `gorm:"index"`
	PositionID string    `gorm:"index"`
	Attributes string
	CreatedAt  time.Time
}

// TableName pins the table name.
func (Entry) TableName() string { return "ledger_events" }

// Record rebuilds the event payload.
func (e *Entry) Record() (*events.Record, error) {
	rec := &events.Record{Type: e.Type, Time: e.Time, Attributes: map[string]string{}}
	if e.Attributes != "" {
		if err := json.Unmarshal([]byte(e.Attributes), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", e.EventID, err)
		}
	}
	return rec, nil
}

// Filter narrows Query results. Zero fields match everything.
type Filter struct {
	Type       string
	Owner      string
	PositionID string
	Since      int64
	Limit      int
}

type job struct {
	rec  *events.Record
	done chan struct{}
}

// Archive appends committed ledger events to a SQL table. Writes happen on a
// background worker so Emit never blocks the ledger; when the queue is full
// the event is dropped and counted.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger

	queue   chan job
	wg      sync.WaitGroup
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// Open connects to the configured driver and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Archive, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", driver, err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, log *slog.Logger) (*Archive, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Archive{db: db, logger: log.With("component", "eventlog"), queue: make(chan job, defaultQueueSize)}
	a.wg.Add(1)
	go a.run()
	return a, nil
}

// Emit implements events.Emitter.
func (a *Archive) Emit(evt events.Event) {
	rec, ok := evt.(*events.Record)
	if !ok || rec == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- job{rec: rec.Clone()}:
	default:
		a.dropped.Add(1)
		metrics.Staking().RecordArchiveDrop()
		a.logger.Warn("archive queue full, dropping event", "type", rec.Type, "time", rec.Time)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (a *Archive) Dropped() uint64 { return a.dropped.Load() }

func (a *Archive) run() {
	defer a.wg.Done()
	for j := range a.queue {
		if j.done != nil {
			close(j.done)
			continue
		}
		if err := a.Append(context.Background(), j.rec); err != nil {
			a.logger.Error("archive event", "type", j.rec.Type, "error", err)
		}
	}
}

// Append writes one record synchronously.
func (a *Archive) Append(ctx context.Context, rec *events.Record) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return err
	}
	entry := &Entry{
		EventID:    uuid.New(),
		Type:       rec.Type,
		Time:       rec.Time,
		Owner:      rec.Attr("owner"),
		PositionID: rec.Attr("id"),
		Attributes: string(attrs),
	}
	return a.db.WithContext(ctx).Create(entry).Error
}

// Query returns archived events in insertion order.
func (a *Archive) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := a.db.WithContext(ctx).Model(&Entry{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Owner != "" {
		q = q.Where("owner = ?", f.Owner)
	}
	if f.PositionID != "" {
		q = q.Where("position_id = ?", f.PositionID)
	}
	if f.Since > 0 {
		q = q.Where("time >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var out []Entry
	if err := q.Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Close drains pending writes and releases the connection.
func (a *Archive) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrArchiveClosed
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()

	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Flush waits until every event queued before the call has been written.
func (a *Archive) Flush(ctx context.Context) error {
	done := make(chan struct{})
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return ErrArchiveClosed
	}
	a.queue <- job{done: done}
	a.mu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
