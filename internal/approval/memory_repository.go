package approval

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.Mutex
	records map[string]PendingTransaction
}

// NewMemoryRepository builds an in-memory store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]PendingTransaction)}
}

func (r *memoryRepository) Create(_ context.Context, p PendingTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[p.ID]; ok {
		return ErrConflict
	}
	if p.Reference != "" {
		for _, existing := range r.records {
			if existing.InitiatorID == p.InitiatorID && existing.Reference == p.Reference {
				return ErrDuplicateReference
			}
		}
	}
	r.records[p.ID] = clone(p)
	return nil
}

func (r *memoryRepository) GetByReference(_ context.Context, initiatorID, reference string) (PendingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.records {
		if reference != "" && p.InitiatorID == initiatorID && p.Reference == reference {
			return clone(p), nil
		}
	}
	return PendingTransaction{}, ErrNotFound
}

func (r *memoryRepository) Get(_ context.Context, id string) (PendingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[id]
	if !ok {
		return PendingTransaction{}, ErrNotFound
	}
	return clone(p), nil
}

func (r *memoryRepository) Transition(_ context.Context, id string, change Change) (PendingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[id]
	if !ok {
		return PendingTransaction{}, ErrNotFound
	}
	if p.Status != StatusPending || IsExpired(p, change.At) != (change.To == StatusExpired) {
		return PendingTransaction{}, ErrConflict
	}
	apply(&p, change)
	r.records[id] = p
	return clone(p), nil
}

func (r *memoryRepository) ListByApprover(_ context.Context, approverID string, status Status) ([]PendingTransaction, error) {
	return r.filter(func(p PendingTransaction) bool {
		return p.ApproverID == approverID && p.Status == status
	}), nil
}

func (r *memoryRepository) ListByInitiator(_ context.Context, initiatorID string) ([]PendingTransaction, error) {
	return r.filter(func(p PendingTransaction) bool { return p.InitiatorID == initiatorID }), nil
}

func (r *memoryRepository) ExpireDue(_ context.Context, now time.Time) ([]PendingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PendingTransaction
	for id, p := range r.records {
		if p.Status != StatusPending || !IsExpired(p, now) {
			continue
		}
		apply(&p, Change{To: StatusExpired, At: now})
		r.records[id] = p
		out = append(out, clone(p))
	}
	return out, nil
}

func (r *memoryRepository) Stats(_ context.Context, userID string, now time.Time) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Stats
	soon := now.Add(ExpiringSoonWindow)
	for _, p := range r.records {
		if p.ApproverID != userID && p.InitiatorID != userID {
			continue
		}
		live := p.Status == StatusPending && !IsExpired(p, now)
		switch {
		case live && p.ApproverID == userID:
			s.AwaitingApproval++
			if !p.ExpiresAt.After(soon) {
				s.ExpiringSoon++
			}
		case p.Status == StatusApproved:
			s.Approved++
		case p.Status == StatusRejected:
			s.Rejected++
		}
		if live && p.InitiatorID == userID {
			s.PendingInitiated++
		}
	}
	return s, nil
}

func (r *memoryRepository) filter(match func(PendingTransaction) bool) []PendingTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []PendingTransaction
	for _, p := range r.records {
		if match(p) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func apply(p *PendingTransaction, change Change) {
	at := change.At
	p.Status = change.To
	p.UpdatedAt = at
	switch change.To {
	case StatusApproved:
		p.ApprovedAt = &at
		p.ApprovalMessage = change.Message
	case StatusRejected:
		p.RejectedAt = &at
		p.RejectionReason = change.Reason
	case StatusCancelled:
		p.CancelledAt = &at
	case StatusExpired:
		p.ExpiredAt = &at
	}
}

func clone(p PendingTransaction) PendingTransaction {
	if p.Payload != nil {
		payload := make(map[string]string, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		p.Payload = payload
	}
	return p
}
