// Package mem is an in-process read-model used by tests and dev mode. It
// mimics the indexed projection: rows appear only after ingestion, which can
// be artificially delayed to exercise the visibility gap.
package mem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"licentia.dev/internal/domain"
	"licentia.dev/internal/ledger"
	"licentia.dev/internal/licensing"
)

type row struct {
	contractID string
	payload    json.RawMessage
	createdAt  time.Time
	seq        int
}

// Store implements licensing.Repository over an in-memory row set.
type Store struct {
	mu    sync.RWMutex
	rows  map[string]row
	seq   int
	delay time.Duration
	now   func() time.Time
}

var _ licensing.Repository = (*Store)(nil)

type Option func(*Store)

// WithIndexingDelay postpones row visibility after Ingest, simulating
// read-model lag.
func WithIndexingDelay(d time.Duration) Option {
	return func(s *Store) { s.delay = d }
}

// WithClock overrides the wall clock used for status computation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{rows: make(map[string]row), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest records a created contract, after the configured delay. Only
// License contracts are projected; everything else is ignored, as the real
// projection filters by template.
func (s *Store) Ingest(c ledger.ActiveContract) {
	if c.TemplateID != licensing.Template {
		return
	}
	apply := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.seq++
		s.rows[string(c.ContractID)] = row{
			contractID: string(c.ContractID),
			payload:    c.Payload,
			createdAt:  c.CreatedAt,
			seq:        s.seq,
		}
	}
	if s.delay <= 0 {
		apply()
		return
	}
	time.AfterFunc(s.delay, apply)
}

// Archive removes a row, mirroring the projection dropping archived
// contracts from the active set.
func (s *Store) Archive(id ledger.ContractID) {
	drop := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.rows, string(id))
	}
	if s.delay <= 0 {
		drop()
		return
	}
	time.AfterFunc(s.delay, drop)
}

func (s *Store) FindByID(ctx context.Context, contractID string) domain.Result[*licensing.License] {
	if err := ctx.Err(); err != nil {
		return domain.Err[*licensing.License](domain.DB("lookup aborted", err))
	}
	s.mu.RLock()
	r, ok := s.rows[contractID]
	s.mu.RUnlock()
	if !ok {
		return domain.Ok[*licensing.License](nil)
	}
	l, err := licensing.Translate(r.contractID, r.payload, r.createdAt, s.now())
	if err != nil {
		return domain.Err[*licensing.License](domain.DB("translate license row", err))
	}
	return domain.Ok(&l)
}

func (s *Store) FindByQuery(ctx context.Context, q licensing.Query) domain.Result[[]licensing.License] {
	if err := ctx.Err(); err != nil {
		return domain.Err[[]licensing.License](domain.DB("query aborted", err))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = licensing.DefaultQueryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	now := s.now()
	s.mu.RLock()
	ordered := make([]row, 0, len(s.rows))
	for _, r := range s.rows {
		ordered = append(ordered, r)
	}
	s.mu.RUnlock()

	// Creation descending; seq breaks ties deterministically.
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].createdAt.Equal(ordered[j].createdAt) {
			return ordered[i].createdAt.After(ordered[j].createdAt)
		}
		return ordered[i].seq > ordered[j].seq
	})

	var matched []licensing.License
	for _, r := range ordered {
		l, err := licensing.Translate(r.contractID, r.payload, r.createdAt, now)
		if err != nil {
			return domain.Err[[]licensing.License](domain.DB("translate license row", err))
		}
		if q.UserID != "" && l.User != q.UserID {
			continue
		}
		if q.ProductID != "" && l.ProductID != q.ProductID {
			continue
		}
		matched = append(matched, l)
	}

	// Pagination happens before the status filter, mirroring the SQL store
	// where status cannot be pushed into the query.
	if offset >= len(matched) {
		matched = nil
	} else {
		matched = matched[offset:]
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	if q.Status != "" {
		var filtered []licensing.License
		for _, l := range matched {
			if l.Status == q.Status {
				filtered = append(filtered, l)
			}
		}
		matched = filtered
	}
	return domain.Ok(matched)
}

func (s *Store) FindActiveByUser(ctx context.Context, userID string) domain.Result[[]licensing.License] {
	if err := ctx.Err(); err != nil {
		return domain.Err[[]licensing.License](domain.DB("query aborted", err))
	}
	now := s.now()
	s.mu.RLock()
	rows := make([]row, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].createdAt.Equal(rows[j].createdAt) {
			return rows[i].createdAt.After(rows[j].createdAt)
		}
		return rows[i].seq > rows[j].seq
	})

	var out []licensing.License
	for _, r := range rows {
		l, err := licensing.Translate(r.contractID, r.payload, r.createdAt, now)
		if err != nil {
			return domain.Err[[]licensing.License](domain.DB("translate license row", err))
		}
		if l.User == userID && l.Status == licensing.StatusActive {
			out = append(out, l)
		}
	}
	return domain.Ok(out)
}
