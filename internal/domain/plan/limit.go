// internal/domain/plan/limit.go
package plan

import "encoding/json"

type LimitKind string

const (
	LimitKindBounded   LimitKind = "bounded"
	LimitKindUnlimited LimitKind = "unlimited"
	LimitKindNoAccess  LimitKind = "no_access"
)

// Limit is a tagged ceiling value: Bounded(n), Unlimited, or NoAccess.
// It is never a sentinel integer, so comparisons stay total and the
// unconfigured-vs-unlimited distinction stays explicit.
type Limit struct {
	kind  LimitKind
	value int64
}

func Bounded(n int64) Limit {
	if n < 0 {
		n = 0
	}
	return Limit{kind: LimitKindBounded, value: n}
}

func Unlimited() Limit { return Limit{kind: LimitKindUnlimited} }

func NoAccess() Limit { return Limit{kind: LimitKindNoAccess} }

func (l Limit) Kind() LimitKind { return l.kind }

func (l Limit) IsUnlimited() bool { return l.kind == LimitKindUnlimited }

// Value returns the bounded ceiling. Only meaningful for Bounded limits;
// NoAccess reports zero.
func (l Limit) Value() int64 {
	if l.kind == LimitKindBounded {
		return l.value
	}
	return 0
}

// Allows reports whether n units fit under the ceiling.
func (l Limit) Allows(n int64) bool {
	switch l.kind {
	case LimitKindUnlimited:
		return true
	case LimitKindBounded:
		return n <= l.value
	default:
		return false
	}
}

// limitJSON is the stored form inside the plan's limits jsonb column:
// {"unlimited": true}, {"none": true}, or {"value": n}. Value is a pointer
// so an explicit zero ceiling stays distinguishable from an absent one.
type limitJSON struct {
	Unlimited bool   `json:"unlimited,omitempty"`
	None      bool   `json:"none,omitempty"`
	Value     *int64 `json:"value,omitempty"`
}

func (l Limit) MarshalJSON() ([]byte, error) {
	switch l.kind {
	case LimitKindUnlimited:
		return json.Marshal(limitJSON{Unlimited: true})
	case LimitKindBounded:
		v := l.value
		return json.Marshal(limitJSON{Value: &v})
	default:
		return json.Marshal(limitJSON{None: true})
	}
}

func (l *Limit) UnmarshalJSON(data []byte) error {
	var raw limitJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Unlimited:
		*l = Unlimited()
	case raw.Value != nil:
		*l = Bounded(*raw.Value)
	default:
		// Explicit none and malformed forms both resolve to no access.
		*l = NoAccess()
	}
	return nil
}
