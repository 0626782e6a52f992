package subject

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"nucleus/internal/moderation/models"
	"nucleus/pkg/platform/sentinel"
)

// InMemory implements ports.SubjectStore for tests and single-node setups.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[models.SubjectID]*models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[models.SubjectID]*models.Profile)}
}

func (s *InMemory) RecordJoin(ctx context.Context, subject models.Subject, at time.Time) error {
	return s.update(ctx, subject.ID, at, func(p *models.Profile) {
		p.RecordJoin(subject, at)
	})
}

func (s *InMemory) RecordLeave(ctx context.Context, subject models.SubjectID, at time.Time) error {
	return s.update(ctx, subject, at, func(p *models.Profile) {
		p.RecordLeave(at)
	})
}

func (s *InMemory) RecordKick(ctx context.Context, subject models.SubjectID, at time.Time) error {
	return s.update(ctx, subject, at, func(p *models.Profile) {
		p.TimesKicked++
	})
}

func (s *InMemory) Get(ctx context.Context, subject models.SubjectID) (*models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[subject]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", subject, sentinel.ErrNotFound)
	}
	out := clone(p)
	return &out, nil
}

func (s *InMemory) FindByAddress(ctx context.Context, address string) ([]models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	address = models.NormalizeAddress(address)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Profile
	for _, p := range s.profiles {
		for _, a := range p.Addresses {
			if a == address {
				out = append(out, clone(p))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// update creates the profile on first sight, first seen at at.
func (s *InMemory) update(ctx context.Context, subject models.SubjectID, at time.Time, fn func(*models.Profile)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[subject]
	if !ok {
		p = &models.Profile{ID: subject, FirstSeen: at, Names: []string{}, Addresses: []string{}}
		s.profiles[subject] = p
	}
	fn(p)
	return nil
}

func clone(p *models.Profile) models.Profile {
	out := *p
	out.Names = append([]string{}, p.Names...)
	out.Addresses = append([]string{}, p.Addresses...)
	if p.OnlineSince != nil {
		since := *p.OnlineSince
		out.OnlineSince = &since
	}
	return out
}
