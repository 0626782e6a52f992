package restriction

import (
	"context"
	"sort"
	"sync"
	"time"

	"nucleus/internal/moderation/models"
)

// InMemory implements ports.RestrictionStore for tests and single-node setups.
// It enforces the same revision gate as the Postgres store.
type InMemory struct {
	mu      sync.RWMutex
	current map[models.Key]models.Restriction
	history map[models.SubjectID][]models.Restriction
}

func NewInMemory() *InMemory {
	return &InMemory{
		current: make(map[models.Key]models.Restriction),
		history: make(map[models.SubjectID][]models.Restriction),
	}
}

func (s *InMemory) Upsert(ctx context.Context, r models.Restriction) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.Key()
	if cur, ok := s.current[key]; ok && r.Revision <= cur.Revision {
		return false, nil
	}
	s.current[key] = r
	return true, nil
}

func (s *InMemory) FindActive(ctx context.Context, subject models.SubjectID, now time.Time) ([]models.Restriction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Restriction
	for key, r := range s.current {
		if key.Subject == subject && r.IsActiveAt(now) {
			out = append(out, r)
		}
	}
	sortRestrictions(out)
	return out, nil
}

func (s *InMemory) FindActiveFor(ctx context.Context, subjects []models.SubjectID, now time.Time) ([]models.Restriction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[models.SubjectID]struct{}, len(subjects))
	for _, subject := range subjects {
		wanted[subject] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Restriction
	for key, r := range s.current {
		if _, ok := wanted[key.Subject]; ok && r.IsActiveAt(now) {
			out = append(out, r)
		}
	}
	sortRestrictions(out)
	return out, nil
}

func (s *InMemory) ListActive(ctx context.Context, now time.Time) ([]models.Restriction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Restriction, 0, len(s.current))
	for _, r := range s.current {
		if r.IsActiveAt(now) {
			out = append(out, r)
		}
	}
	sortRestrictions(out)
	return out, nil
}

func (s *InMemory) CurrentRevision(ctx context.Context, key models.Key) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[key].Revision, nil
}

func (s *InMemory) AppendHistory(ctx context.Context, r models.Restriction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[r.Subject.ID] = append(s.history[r.Subject.ID], r)
	return nil
}

func (s *InMemory) History(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[subject]
	out := make([]models.Restriction, len(entries))
	for i := range entries {
		out[len(entries)-1-i] = entries[i]
	}
	return out, nil
}

func sortRestrictions(rs []models.Restriction) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Subject.ID != rs[j].Subject.ID {
			return rs[i].Subject.ID < rs[j].Subject.ID
		}
		if rs[i].Kind != rs[j].Kind {
			return rs[i].Kind < rs[j].Kind
		}
		return rs[i].Scope < rs[j].Scope
	})
}
