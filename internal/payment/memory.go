package payment

import (
	"context"
	"fmt"
	"sync"
	"usagemeter/internal/models"
)

// MemoryVerifier answers from a fixed table of confirmations. It backs the
// static provider used in local development and stands in for the provider
// in tests.
type MemoryVerifier struct {
	mu            sync.RWMutex
	confirmations map[string]Confirmation
}

var _ Verifier = (*MemoryVerifier)(nil)

// NewMemoryVerifier creates a verifier that knows the given confirmations.
func NewMemoryVerifier(confirmations ...Confirmation) *MemoryVerifier {
	v := &MemoryVerifier{confirmations: make(map[string]Confirmation)}
	for _, c := range confirmations {
		v.confirmations[c.Reference] = c
	}
	return v
}

// NewStaticVerifier builds a MemoryVerifier from configuration.
func NewStaticVerifier(entries []models.StaticConfirmation) (*MemoryVerifier, error) {
	confirmations := make([]Confirmation, 0, len(entries))
	for _, e := range entries {
		status, err := ParseStatus(e.Status)
		if err != nil {
			return nil, fmt.Errorf("static confirmation %q: %w", e.Reference, err)
		}
		confirmations = append(confirmations, Confirmation{
			Reference:    e.Reference,
			Status:       status,
			CreditAmount: e.Credits,
		})
	}
	return NewMemoryVerifier(confirmations...), nil
}

// Set adds or replaces the confirmation for c.Reference.
func (v *MemoryVerifier) Set(c Confirmation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmations[c.Reference] = c
}

// Verify returns the stored confirmation, or StatusUnknown.
func (v *MemoryVerifier) Verify(ctx context.Context, reference string) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	c, ok := v.confirmations[reference]
	if !ok {
		return Confirmation{Reference: reference, Status: StatusUnknown}, nil
	}
	return c, nil
}
