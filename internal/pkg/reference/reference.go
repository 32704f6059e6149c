// internal/pkg/reference/reference.go
package reference

import (
	"crypto/rand"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// New generates a prefixed, time-ordered unique reference, e.g. "PUR-01J8...".
// ULIDs sort by creation time, which keeps ledger and log listings stable.
func New(prefix string) string {
	id := ulid.MustNew(ulid.Now(), rand.Reader)
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

// Purchase references fund exactly one ledger mutation, so they double as
// the idempotency key for payment confirmation.
func Purchase() string { return New("PUR") }

// Message references key the debit (and any refund) for one dispatch.
func Message() string { return New("MSG") }

// Log references identify one outbound batch.
func Log() string { return New("LOG") }
