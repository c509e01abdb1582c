package store

import (
	"encoding/json"
	"fmt"

	"github.com/nutrimama/nutrimama/internal/domain"
)

// encodeProfile serializes the two halves of a profile separately so each
// can live in its own column.
func encodeProfile(p *domain.Profile) (belief, memory []byte, err error) {
	if p == nil || p.Belief == nil || p.Memory == nil {
		return nil, nil, fmt.Errorf("encode profile: belief and memory are required")
	}
	if belief, err = json.Marshal(p.Belief); err != nil {
		return nil, nil, fmt.Errorf("encode belief: %w", err)
	}
	if memory, err = json.Marshal(p.Memory); err != nil {
		return nil, nil, fmt.Errorf("encode memory: %w", err)
	}
	return belief, memory, nil
}

func decodeProfile(belief, memory []byte) (*domain.Profile, error) {
	p := &domain.Profile{Belief: &domain.BeliefState{}, Memory: &domain.Memory{}}
	if err := json.Unmarshal(belief, p.Belief); err != nil {
		return nil, fmt.Errorf("decode belief: %w", err)
	}
	if err := json.Unmarshal(memory, p.Memory); err != nil {
		return nil, fmt.Errorf("decode memory: %w", err)
	}
	p.Normalize()
	return p, nil
}
