package ledger

import "math"

// MaxRecentRefs bounds the replay set carried in the state. A reference that
// has been evicted can be granted again.
const MaxRecentRefs = 20

// State is a client's credit balance and the payment references already
// applied to it, oldest first.
type State struct {
	TotalCredits      int64    `json:"total_credits"`
	RecentPaymentRefs []string `json:"recent_payment_refs"`
}

// Empty returns the state of a client that has never paid.
func Empty() State {
	return State{RecentPaymentRefs: []string{}}
}

// Seen reports whether ref has already been applied.
func (s State) Seen(ref string) bool {
	for _, r := range s.RecentPaymentRefs {
		if r == ref {
			return true
		}
	}
	return false
}

// Apply returns s with amount added and ref recorded. The total saturates at
// math.MaxInt64 and never decreases. The oldest references are evicted to
// keep at most MaxRecentRefs. s is not modified.
func Apply(s State, ref string, amount int64) State {
	refs := make([]string, 0, len(s.RecentPaymentRefs)+1)
	refs = append(refs, s.RecentPaymentRefs...)
	refs = append(refs, ref)
	if over := len(refs) - MaxRecentRefs; over > 0 {
		refs = refs[over:]
	}

	return State{
		TotalCredits:      addCredits(s.TotalCredits, amount),
		RecentPaymentRefs: refs,
	}
}

func addCredits(total, amount int64) int64 {
	if amount <= 0 {
		return total
	}
	if total > math.MaxInt64-amount {
		return math.MaxInt64
	}
	return total + amount
}

// Normalize repairs a state decoded from an untrusted source: empty and
// duplicate references are dropped, the list is cut to the newest
// MaxRecentRefs and a negative total becomes zero.
func (s State) Normalize() State {
	out := State{
		TotalCredits:      s.TotalCredits,
		RecentPaymentRefs: make([]string, 0, len(s.RecentPaymentRefs)),
	}
	if out.TotalCredits < 0 {
		out.TotalCredits = 0
	}

	seen := make(map[string]struct{}, len(s.RecentPaymentRefs))
	for _, ref := range s.RecentPaymentRefs {
		if ref == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out.RecentPaymentRefs = append(out.RecentPaymentRefs, ref)
	}

	if over := len(out.RecentPaymentRefs) - MaxRecentRefs; over > 0 {
		out.RecentPaymentRefs = out.RecentPaymentRefs[over:]
	}
	return out
}
