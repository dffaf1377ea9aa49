package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/rules"
)

// Memory is an in-process VersionStore with the same CAS semantics as the
// Postgres implementation. Used in tests and by the sandbox CLI.
type Memory struct {
	mu             sync.Mutex
	sets           map[uuid.UUID]*rules.RuleSet
	active         map[string]int // policy_id → active version
	clarifications map[uuid.UUID][]rules.Clarification
	evaluations    map[uuid.UUID]*EvaluationRecord
}

func NewMemory() *Memory {
	return &Memory{
		sets:           make(map[uuid.UUID]*rules.RuleSet),
		active:         make(map[string]int),
		clarifications: make(map[uuid.UUID][]rules.Clarification),
		evaluations:    make(map[uuid.UUID]*EvaluationRecord),
	}
}

func cloneSet(rs *rules.RuleSet) *rules.RuleSet {
	// JSON round-trip: Rule payloads hold pointers, a shallow copy would
	// alias them.
	b, _ := json.Marshal(rs)
	var cp rules.RuleSet
	_ = json.Unmarshal(b, &cp)
	return &cp
}

func (m *Memory) CreateDraft(_ context.Context, rs *rules.RuleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := 0
	for _, existing := range m.sets {
		if existing.PolicyID == rs.PolicyID && existing.Version > next {
			next = existing.Version
		}
	}
	rs.Version = next + 1
	rs.Status = rules.StatusDraft
	m.sets[rs.ID] = cloneSet(rs)
	return nil
}

func (m *Memory) UpdateDraft(_ context.Context, rs *rules.RuleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sets[rs.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Frozen() {
		return &FrozenError{RuleSetID: existing.ID, Version: existing.Version}
	}
	cp := cloneSet(rs)
	cp.Version = existing.Version
	cp.Status = rules.StatusDraft
	m.sets[rs.ID] = cp
	return nil
}

func (m *Memory) Approve(_ context.Context, id uuid.UUID, approvedBy, expectedHash string) (*rules.RuleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, ok := m.sets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rs.Frozen() {
		return nil, &VersionConflictError{PolicyID: rs.PolicyID, RuleSetID: id,
			Reason: "draft was already approved"}
	}
	if rs.ContentHash != expectedHash {
		return nil, &VersionConflictError{PolicyID: rs.PolicyID, RuleSetID: id,
			Reason: fmt.Sprintf("draft content changed: expected hash %s, found %s", expectedHash, rs.ContentHash)}
	}
	now := time.Now().UTC()
	rs.Status = rules.StatusApproved
	rs.ApprovedBy = approvedBy
	rs.ApprovedAt = &now
	return cloneSet(rs), nil
}

func (m *Memory) GetByVersion(_ context.Context, policyID string, version int) (*rules.RuleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rs := range m.sets {
		if rs.PolicyID == policyID && rs.Version == version {
			return cloneSet(rs), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetByHash(_ context.Context, contentHash string) (*rules.RuleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rs := range m.sets {
		if rs.ContentHash == contentHash && rs.Frozen() {
			return cloneSet(rs), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListVersions(_ context.Context, policyID string) ([]VersionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []VersionInfo
	for _, rs := range m.sets {
		if rs.PolicyID != policyID {
			continue
		}
		out = append(out, VersionInfo{
			Version:     rs.Version,
			Status:      rs.Status,
			ContentHash: rs.ContentHash,
			ApprovedBy:  rs.ApprovedBy,
			ApprovedAt:  rs.ApprovedAt,
			CreatedAt:   rs.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Memory) SetActive(_ context.Context, policyID string, version, expectedCurrent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var target *rules.RuleSet
	for _, rs := range m.sets {
		if rs.PolicyID == policyID && rs.Version == version {
			target = rs
			break
		}
	}
	if target == nil {
		return ErrNotFound
	}
	if !target.Frozen() {
		return fmt.Errorf("version %d of policy %q is not approved", version, policyID)
	}
	if current := m.active[policyID]; current != expectedCurrent {
		return &VersionConflictError{PolicyID: policyID,
			Reason: fmt.Sprintf("active version is %d, not %d", current, expectedCurrent)}
	}
	m.active[policyID] = version
	return nil
}

func (m *Memory) Active(ctx context.Context, policyID string) (*rules.RuleSet, error) {
	m.mu.Lock()
	version, ok := m.active[policyID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.GetByVersion(ctx, policyID, version)
}

func (m *Memory) LogClarifications(_ context.Context, rulesetID uuid.UUID, cls []rules.Clarification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clarifications[rulesetID] = append(m.clarifications[rulesetID], cls...)
	return nil
}

func (m *Memory) SaveEvaluation(_ context.Context, rec *EvaluationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.evaluations[rec.ID] = &cp
	return nil
}

func (m *Memory) GetEvaluation(_ context.Context, id uuid.UUID) (*EvaluationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.evaluations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}
