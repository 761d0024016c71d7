package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nidhogg/agent-memory/internal/errs"
	"github.com/nidhogg/agent-memory/internal/model"
)

// Insert persists a new raw memory row under the caller-supplied id and
// returns it (invariant I2: the consumer assigns identity, so the row and
// its vector share the id). Re-inserting an existing id is a no-op
// (ON CONFLICT DO NOTHING) and returns no error.
func (s *Store) Insert(ctx context.Context, id string, env model.Envelope) (model.Memory, error) {
	tagsJSON, err := json.Marshal(env.ContextTags)
	if err != nil {
		return model.Memory{}, fmt.Errorf("marshal tags: %w", err)
	}

	m := model.Memory{
		ID:        id,
		Text:      env.Text,
		Tags:      env.ContextTags,
		SourceApp: env.SourceApp,
		SessionID: env.SessionID,
		Status:    model.StatusRaw,
		CreatedAt: env.Timestamp,
		UpdatedAt: env.Timestamp,
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO memories (id, text, tags, source_app, session_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Text, tagsJSON, m.SourceApp, m.SessionID, string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return model.Memory{}, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

// GetByID hydrates a single memory row. Returns errs.ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id string) (model.Memory, error) {
	m, err := s.scanOne(ctx, s.db.QueryRow(ctx, `
		SELECT id, text, tags, source_app, session_id, status, created_at, updated_at
		FROM memories WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Memory{}, fmt.Errorf("memory %s: %w", id, errs.ErrNotFound)
		}
		return model.Memory{}, err
	}
	return m, nil
}

// GetByIDs hydrates a batch of rows, preserving no particular order;
// callers that need ordering re-sort by the returned CreatedAt/ID.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, text, tags, source_app, session_id, status, created_at, updated_at
		FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get memories by ids: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// ListRawCandidates returns up to limit rows with status='raw', oldest
// first, for the curator's consolidation sweep (§4.6, batch size W).
func (s *Store) ListRawCandidates(ctx context.Context, limit int) ([]model.Memory, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, text, tags, source_app, session_id, status, created_at, updated_at
		FROM memories
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, string(model.StatusRaw), limit)
	if err != nil {
		return nil, fmt.Errorf("list raw candidates: %w", err)
	}
	defer rows.Close()
	return s.scanAll(rows)
}

// UpdateTextAndStatus rewrites a memory's text, tags, and status after
// consolidation (the merge target becomes the I3 anchor row). updatedAt
// must be >= the row's current created_at (invariant I4).
func (s *Store) UpdateTextAndStatus(ctx context.Context, id, text string, tags []string, status model.Status, updatedAt int64) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE memories SET text = $2, tags = $3, status = $4, updated_at = $5
		WHERE id = $1`, id, text, tagsJSON, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("update memory %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("memory %s: %w", id, errs.ErrNotFound)
	}
	return nil
}

// Delete removes a memory row by id. Deleting an already-absent id is not
// an error: the curator's duplicate-removal step is idempotent by design.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	return nil
}

type row interface {
	Scan(dest ...any) error
}

func (s *Store) scanOne(ctx context.Context, r row) (model.Memory, error) {
	var m model.Memory
	var tagsJSON []byte
	var status string
	if err := r.Scan(&m.ID, &m.Text, &tagsJSON, &m.SourceApp, &m.SessionID, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return model.Memory{}, err
	}
	m.Status = model.Status(status)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &m.Tags); err != nil {
			return model.Memory{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return m, nil
}

func (s *Store) scanAll(rows pgx.Rows) ([]model.Memory, error) {
	var out []model.Memory
	for rows.Next() {
		m, err := s.scanOne(context.Background(), rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
