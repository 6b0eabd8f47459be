package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists entries in catalog_audit_log.
type PostgresStore struct {
	db pgxConn
}

// NewPostgresStore constructs a PostgresStore over a pool or transaction.
func NewPostgresStore(db pgxConn) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertEntry(ctx context.Context, e Entry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	_, err := s.db.Exec(ctx, `INSERT INTO catalog_audit_log
		(id, action, resource, resource_id, request_id, ip, user_agent, status, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9::jsonb, '{}'::jsonb), $10)`,
		e.ID, e.Action, e.Resource, toNullText(e.ResourceID), toNullText(e.RequestID),
		toNullText(e.IP), toNullText(e.UserAgent), e.Status, metadata, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, p ListParams) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT id, action, resource, resource_id, request_id, ip,
		user_agent, status, metadata, occurred_at
		FROM catalog_audit_log
		WHERE ($1 = '' OR resource_id = $1)
		ORDER BY occurred_at DESC, id
		LIMIT $2 OFFSET $3`, p.ResourceID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e                                    Entry
			resourceID, requestID, ip, userAgent pgtype.Text
			status                               int32
			metadata                             []byte
		)
		if err := row.Scan(&e.ID, &e.Action, &e.Resource, &resourceID, &requestID, &ip,
			&userAgent, &status, &metadata, &e.OccurredAt); err != nil {
			return Entry{}, err
		}
		e.ResourceID = resourceID.String
		e.RequestID = requestID.String
		e.IP = ip.String
		e.UserAgent = userAgent.String
		e.Status = int(status)
		if len(metadata) > 0 && string(metadata) != "{}" {
			e.Metadata = metadata
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, nil
}

func toNullText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

// MemoryStore keeps entries in process. It backs STORAGE_DRIVER=memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertEntry(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) ListEntries(_ context.Context, p ListParams) ([]Entry, error) {
	s.mu.RLock()
	matched := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; p.ResourceID == "" || e.ResourceID == p.ResourceID {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})
	if p.Offset >= len(matched) {
		return []Entry{}, nil
	}
	matched = matched[p.Offset:]
	if p.Limit > 0 && p.Limit < len(matched) {
		matched = matched[:p.Limit]
	}
	return matched, nil
}
