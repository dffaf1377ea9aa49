package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbiterhq/arbiter/internal/rules"
)

var _ VersionStore = (*Postgres)(nil)
var _ VersionStore = (*Memory)(nil)

// Postgres is the durable VersionStore.
//
// Tables: rule_sets (one row per version, canonical JSON doc plus metadata
// columns), policy_active (active-version pointer), clarification_audit,
// evaluations.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateDraft(ctx context.Context, rs *rules.RuleSet) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM rule_sets WHERE policy_id = $1`,
		rs.PolicyID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next version: %w", err)
	}
	rs.Version = next
	rs.Status = rules.StatusDraft

	doc, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal rule set: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rule_sets (id, policy_id, version, status, content_hash, generation_method, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rs.ID, rs.PolicyID, rs.Version, rs.Status, rs.ContentHash, rs.GenerationMethod, rs.CreatedAt, doc,
	)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateDraft(ctx context.Context, rs *rules.RuleSet) error {
	doc, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal rule set: %w", err)
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE rule_sets SET content_hash = $1, doc = $2
		WHERE id = $3 AND status = 'draft'`,
		rs.ContentHash, doc, rs.ID,
	)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		rs2, getErr := p.getByID(ctx, rs.ID)
		if getErr != nil {
			return ErrNotFound
		}
		return &FrozenError{RuleSetID: rs2.ID, Version: rs2.Version}
	}
	return nil
}

// Approve is the single atomic freeze write: the draft transitions to
// approved only if it is still a draft and its content hash still matches.
// A concurrent approval or a draft edit makes the compare fail.
func (p *Postgres) Approve(ctx context.Context, id uuid.UUID, approvedBy, expectedHash string) (*rules.RuleSet, error) {
	now := time.Now().UTC()
	tag, err := p.pool.Exec(ctx, `
		UPDATE rule_sets
		SET status = 'approved', approved_by = $1, approved_at = $2,
		    doc = jsonb_set(jsonb_set(jsonb_set(doc,
		        '{status}', '"approved"'),
		        '{approved_by}', to_jsonb($1::text)),
		        '{approved_at}', to_jsonb($2::timestamptz))
		WHERE id = $3 AND status = 'draft' AND content_hash = $4`,
		approvedBy, now, id, expectedHash,
	)
	if err != nil {
		return nil, fmt.Errorf("approve rule set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		rs, getErr := p.getByID(ctx, id)
		if getErr != nil {
			return nil, ErrNotFound
		}
		return nil, &VersionConflictError{PolicyID: rs.PolicyID, RuleSetID: id,
			Reason: "draft was approved concurrently or its content changed"}
	}
	return p.getByID(ctx, id)
}

func (p *Postgres) getByID(ctx context.Context, id uuid.UUID) (*rules.RuleSet, error) {
	return p.scanOne(p.pool.QueryRow(ctx, `SELECT doc FROM rule_sets WHERE id = $1`, id))
}

func (p *Postgres) GetByVersion(ctx context.Context, policyID string, version int) (*rules.RuleSet, error) {
	return p.scanOne(p.pool.QueryRow(ctx, `
		SELECT doc FROM rule_sets WHERE policy_id = $1 AND version = $2`,
		policyID, version))
}

func (p *Postgres) GetByHash(ctx context.Context, contentHash string) (*rules.RuleSet, error) {
	return p.scanOne(p.pool.QueryRow(ctx, `
		SELECT doc FROM rule_sets WHERE content_hash = $1 AND status = 'approved'
		ORDER BY approved_at LIMIT 1`,
		contentHash))
}

func (p *Postgres) scanOne(row pgx.Row) (*rules.RuleSet, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan rule set: %w", err)
	}
	var rs rules.RuleSet
	if err := json.Unmarshal(doc, &rs); err != nil {
		return nil, fmt.Errorf("unmarshal rule set: %w", err)
	}
	return &rs, nil
}

func (p *Postgres) ListVersions(ctx context.Context, policyID string) ([]VersionInfo, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT version, status, content_hash, COALESCE(approved_by, ''), approved_at, created_at
		FROM rule_sets WHERE policy_id = $1 ORDER BY version`,
		policyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionInfo
	for rows.Next() {
		var v VersionInfo
		if err := rows.Scan(&v.Version, &v.Status, &v.ContentHash, &v.ApprovedBy, &v.ApprovedAt, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) SetActive(ctx context.Context, policyID string, version, expectedCurrent int) error {
	rs, err := p.GetByVersion(ctx, policyID, version)
	if err != nil {
		return err
	}
	if !rs.Frozen() {
		return fmt.Errorf("version %d of policy %q is not approved", version, policyID)
	}

	var tag pgconn.CommandTag
	if expectedCurrent == 0 {
		tag, err = p.pool.Exec(ctx, `
			INSERT INTO policy_active (policy_id, active_version)
			VALUES ($1, $2)
			ON CONFLICT (policy_id) DO NOTHING`,
			policyID, version,
		)
	} else {
		tag, err = p.pool.Exec(ctx, `
			UPDATE policy_active SET active_version = $2
			WHERE policy_id = $1 AND active_version = $3`,
			policyID, version, expectedCurrent,
		)
	}
	if err != nil {
		return fmt.Errorf("set active version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &VersionConflictError{PolicyID: policyID,
			Reason: fmt.Sprintf("active version is no longer %d", expectedCurrent)}
	}
	return nil
}

func (p *Postgres) Active(ctx context.Context, policyID string) (*rules.RuleSet, error) {
	var version int
	err := p.pool.QueryRow(ctx, `
		SELECT active_version FROM policy_active WHERE policy_id = $1`,
		policyID,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("active version: %w", err)
	}
	return p.GetByVersion(ctx, policyID, version)
}

func (p *Postgres) LogClarifications(ctx context.Context, rulesetID uuid.UUID, cls []rules.Clarification) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, cl := range cls {
		answer := ""
		if cl.Answer != nil {
			answer = *cl.Answer
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO clarification_audit (id, ruleset_id, clarification_id, question, answer, resolved_ambiguity, logged_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())`,
			uuid.New(), rulesetID, cl.ID, cl.Question, answer, cl.ResolvedAmbiguity,
		)
		if err != nil {
			return fmt.Errorf("insert clarification audit: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) SaveEvaluation(ctx context.Context, rec *EvaluationRecord) error {
	summary, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO evaluations (id, call_id, policy_id, ruleset_version, content_hash, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.CallID, rec.PolicyID, rec.RuleSetVersion, rec.ContentHash, summary, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (p *Postgres) GetEvaluation(ctx context.Context, id uuid.UUID) (*EvaluationRecord, error) {
	var rec EvaluationRecord
	var summary []byte
	err := p.pool.QueryRow(ctx, `
		SELECT id, call_id, policy_id, ruleset_version, content_hash, summary, created_at
		FROM evaluations WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.CallID, &rec.PolicyID, &rec.RuleSetVersion, &rec.ContentHash, &summary, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	if err := json.Unmarshal(summary, &rec.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &rec, nil
}
