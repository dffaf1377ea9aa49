// Package store persists rule set versions and evaluation records. Approved
// versions are immutable, hash-addressed snapshots; the only mutations the
// store permits are draft edits, the atomic draft→approved freeze, and the
// active-version pointer, both of the latter via compare-and-set.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/aggregate"
	"github.com/arbiterhq/arbiter/internal/rules"
)

// ErrNotFound is returned for unknown policies, versions, hashes or records.
var ErrNotFound = errors.New("not found")

// VersionConflictError is the loser's result in a concurrent approval or
// activation race. The caller must re-read the latest state and retry; the
// winner's write is never overwritten.
type VersionConflictError struct {
	PolicyID  string
	RuleSetID uuid.UUID
	Reason    string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on policy %q: %s", e.PolicyID, e.Reason)
}

// FrozenError is returned for any mutation attempt on an approved rule set.
// Immutability violations are errors, never silent no-ops.
type FrozenError struct {
	RuleSetID uuid.UUID
	Version   int
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("rule set %s (version %d) is approved and immutable", e.RuleSetID, e.Version)
}

// VersionInfo is a listing entry for the audit/version API.
type VersionInfo struct {
	Version     int          `json:"version"`
	Status      rules.Status `json:"status"`
	ContentHash string       `json:"content_hash"`
	ApprovedBy  string       `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time   `json:"approved_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// EvaluationRecord ties a persisted summary to the exact frozen snapshot it
// was produced against, so any past evaluation can be reproduced.
type EvaluationRecord struct {
	ID             uuid.UUID         `json:"id"`
	CallID         string            `json:"call_id"`
	PolicyID       string            `json:"policy_id"`
	RuleSetVersion int               `json:"ruleset_version"`
	ContentHash    string            `json:"content_hash"`
	Summary        aggregate.Summary `json:"summary"`
	CreatedAt      time.Time         `json:"created_at"`
}

// VersionStore is the persistence contract shared by the Postgres and
// in-memory implementations.
type VersionStore interface {
	// CreateDraft assigns the next monotonic version for the policy and
	// persists the draft.
	CreateDraft(ctx context.Context, rs *rules.RuleSet) error

	// UpdateDraft replaces a draft's content. Returns *FrozenError if the
	// set has been approved.
	UpdateDraft(ctx context.Context, rs *rules.RuleSet) error

	// Approve atomically freezes a draft whose content hash still equals
	// expectedHash. The loser of a race gets *VersionConflictError.
	Approve(ctx context.Context, id uuid.UUID, approvedBy, expectedHash string) (*rules.RuleSet, error)

	GetByVersion(ctx context.Context, policyID string, version int) (*rules.RuleSet, error)
	GetByHash(ctx context.Context, contentHash string) (*rules.RuleSet, error)
	ListVersions(ctx context.Context, policyID string) ([]VersionInfo, error)

	// SetActive moves the policy's active-version pointer from
	// expectedCurrent (0 when unset) to version, compare-and-set.
	SetActive(ctx context.Context, policyID string, version, expectedCurrent int) error
	Active(ctx context.Context, policyID string) (*rules.RuleSet, error)

	// LogClarifications appends resolved clarifications to the audit log.
	LogClarifications(ctx context.Context, rulesetID uuid.UUID, cls []rules.Clarification) error

	SaveEvaluation(ctx context.Context, rec *EvaluationRecord) error
	GetEvaluation(ctx context.Context, id uuid.UUID) (*EvaluationRecord, error)
}
