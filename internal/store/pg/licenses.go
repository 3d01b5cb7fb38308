// Package pg queries the indexed projection (PQS) over Postgres. The store
// is strictly read-only from this service's point of view: the ingestion
// pipeline owns the tables.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"licentia.dev/internal/domain"
	"licentia.dev/internal/licensing"
)

// Store implements licensing.Repository over the active_contracts snapshot
// table.
type Store struct {
	db *sql.DB
}

var _ licensing.Repository = (*Store)(nil)

// Open connects with pooled defaults sized for many concurrent read queries.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Test use.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for the readiness probe ping.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) FindByID(ctx context.Context, contractID string) domain.Result[*licensing.License] {
	var (
		id        string
		payload   []byte
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		select contract_id, create_arguments, created_at
		from active_contracts
		where contract_id = $1 and template_id = $2
		limit 1
	`, contractID, string(licensing.Template)).Scan(&id, &payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Absence is a successful answer: the row may simply not be
		// indexed yet, or the contract is archived.
		return domain.Ok[*licensing.License](nil)
	}
	if err != nil {
		return domain.Err[*licensing.License](domain.DB("fetch license row", err))
	}

	l, err := licensing.Translate(id, payload, createdAt, time.Now())
	if err != nil {
		return domain.Err[*licensing.License](domain.DB("translate license row", err))
	}
	return domain.Ok(&l)
}

func (s *Store) FindByQuery(ctx context.Context, q licensing.Query) domain.Result[[]licensing.License] {
	limit := q.Limit
	if limit <= 0 {
		limit = licensing.DefaultQueryLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		select contract_id, create_arguments, created_at
		from active_contracts
		where template_id = $1`
	args := []any{string(licensing.Template)}

	if q.UserID != "" {
		args = append(args, q.UserID)
		query += fmt.Sprintf(" and create_arguments->>'user' = $%d", len(args))
	}
	if q.ProductID != "" {
		args = append(args, q.ProductID)
		query += fmt.Sprintf(" and create_arguments->>'productId' = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" order by created_at desc limit $%d offset $%d", len(args)-1, len(args))

	licenses, derr := s.queryLicenses(ctx, query, args...)
	if derr != nil {
		return domain.Err[[]licensing.License](derr)
	}

	// Status is computed, not stored, so it filters after translation.
	if q.Status != "" {
		var filtered []licensing.License
		for _, l := range licenses {
			if l.Status == q.Status {
				filtered = append(filtered, l)
			}
		}
		licenses = filtered
	}
	return domain.Ok(licenses)
}

func (s *Store) FindActiveByUser(ctx context.Context, userID string) domain.Result[[]licensing.License] {
	licenses, derr := s.queryLicenses(ctx, `
		select contract_id, create_arguments, created_at
		from active_contracts
		where template_id = $1 and create_arguments->>'user' = $2
		order by created_at desc
	`, string(licensing.Template), userID)
	if derr != nil {
		return domain.Err[[]licensing.License](derr)
	}

	var active []licensing.License
	for _, l := range licenses {
		if l.Status == licensing.StatusActive {
			active = append(active, l)
		}
	}
	return domain.Ok(active)
}

func (s *Store) queryLicenses(ctx context.Context, query string, args ...any) ([]licensing.License, *domain.Error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.DB("query license rows", err)
	}
	defer rows.Close()

	now := time.Now()
	var out []licensing.License
	for rows.Next() {
		var (
			id        string
			payload   []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &payload, &createdAt); err != nil {
			return nil, domain.DB("scan license row", err)
		}
		l, err := licensing.Translate(id, payload, createdAt, now)
		if err != nil {
			return nil, domain.DB("translate license row", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.DB("iterate license rows", err)
	}
	return out, nil
}
