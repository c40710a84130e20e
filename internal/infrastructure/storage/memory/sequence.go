package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sequence issues PREFIX-YYYY-NNNNN numbers per tenant, like the sys_sequences table.
type Sequence struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewSequence creates an empty sequence.
func NewSequence() *Sequence {
	return &Sequence{values: make(map[string]int64)}
}

// Next returns the next number of prefix for the tenant in the year of at.
func (s *Sequence) Next(ctx context.Context, tenantID, prefix string, at time.Time) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("sequence: tenant is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s:%s_%d", tenantID, prefix, at.Year())
	s.values[key]++
	return fmt.Sprintf("%s-%d-%05d", prefix, at.Year(), s.values[key]), nil
}
