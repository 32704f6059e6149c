// internal/domain/message/entity.go
package message

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type ScheduledStatus string

const (
	ScheduledStatusPending    ScheduledStatus = "pending"
	ScheduledStatusProcessing ScheduledStatus = "processing"
	ScheduledStatusSent       ScheduledStatus = "sent"
	ScheduledStatusFailed     ScheduledStatus = "failed"
	ScheduledStatusCancelled  ScheduledStatus = "cancelled"
)

// Terminal reports whether no further transition is legal.
func (s ScheduledStatus) Terminal() bool {
	return s == ScheduledStatusSent || s == ScheduledStatusFailed || s == ScheduledStatusCancelled
}

// ScheduledMessage is owned by the dispatcher until it reaches a terminal
// status, after which it is immutable. Claiming moves pending -> processing
// atomically; cancellation is only legal while pending.
type ScheduledMessage struct {
	ID        int64  `json:"id" db:"id"`
	Reference string `json:"reference" db:"reference"`
	TenantID  int64  `json:"tenant_id" db:"tenant_id"`

	Body           string         `json:"body" db:"body"`
	Recipients     pq.StringArray `json:"recipients" db:"recipients"`
	RecipientQuery sql.NullString `json:"recipient_query,omitempty" db:"recipient_query"`
	Category       sql.NullString `json:"category,omitempty" db:"category"`

	ScheduledAt time.Time       `json:"scheduled_at" db:"scheduled_at"`
	Status      ScheduledStatus `json:"status" db:"status"`

	EstimatedCredits int64          `json:"estimated_credits" db:"estimated_credits"`
	CreditsUsed      sql.NullInt64  `json:"credits_used,omitempty" db:"credits_used"`
	ExecutionError   sql.NullString `json:"execution_error,omitempty" db:"execution_error"`
	MessageLogID     sql.NullInt64  `json:"message_log_id,omitempty" db:"message_log_id"`

	ClaimedAt   sql.NullTime `json:"claimed_at,omitempty" db:"claimed_at"`
	SentAt      sql.NullTime `json:"sent_at,omitempty" db:"sent_at"`
	CancelledAt sql.NullTime `json:"cancelled_at,omitempty" db:"cancelled_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RecipientStatus string

const (
	RecipientStatusPending   RecipientStatus = "pending"
	RecipientStatusSubmitted RecipientStatus = "submitted"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusFailed    RecipientStatus = "failed"
)

// rank orders recipient statuses for monotonic progression. Delivered and
// failed share the top rank: the first terminal status wins.
func (s RecipientStatus) rank() int {
	switch s {
	case RecipientStatusPending:
		return 0
	case RecipientStatusSubmitted:
		return 1
	case RecipientStatusSent:
		return 2
	case RecipientStatusDelivered, RecipientStatusFailed:
		return 3
	default:
		return -1
	}
}

func (s RecipientStatus) Terminal() bool {
	return s == RecipientStatusDelivered || s == RecipientStatusFailed
}

// CanAdvanceTo reports whether a transition from s to next is a forward move.
// Terminal states never regress; a late conflicting callback is audit data.
func (s RecipientStatus) CanAdvanceTo(next RecipientStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

type OverallStatus string

const (
	OverallStatusPending   OverallStatus = "pending"
	OverallStatusDelivered OverallStatus = "delivered"
	OverallStatusFailed    OverallStatus = "failed"
	OverallStatusPartial   OverallStatus = "partial"
)

// MessageLog is one dispatched batch, scheduled or immediate.
type MessageLog struct {
	ID                 int64         `json:"id" db:"id"`
	Reference          string        `json:"reference" db:"reference"`
	TenantID           int64         `json:"tenant_id" db:"tenant_id"`
	ScheduledMessageID sql.NullInt64 `json:"scheduled_message_id,omitempty" db:"scheduled_message_id"`

	Body            string `json:"body" db:"body"`
	TotalRecipients int    `json:"total_recipients" db:"total_recipients"`
	SuccessfulCount int    `json:"successful_count" db:"successful_count"`
	FailedCount     int    `json:"failed_count" db:"failed_count"`
	CreditsUsed     int64  `json:"credits_used" db:"credits_used"`

	OverallStatus OverallStatus `json:"overall_status" db:"overall_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Recipient is the per-phone sub-record of a MessageLog.
type Recipient struct {
	ID           int64  `json:"id" db:"id"`
	MessageLogID int64  `json:"message_log_id" db:"message_log_id"`
	Phone        string `json:"phone" db:"phone"`

	Status        RecipientStatus `json:"status" db:"status"`
	FailureReason sql.NullString  `json:"failure_reason,omitempty" db:"failure_reason"`

	SubmittedAt sql.NullTime `json:"submitted_at,omitempty" db:"submitted_at"`
	DeliveredAt sql.NullTime `json:"delivered_at,omitempty" db:"delivered_at"`
	FailedAt    sql.NullTime `json:"failed_at,omitempty" db:"failed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DeliveryEvent is the append-only audit trail of carrier callbacks,
// including late or out-of-order ones that did not change recipient state.
type DeliveryEvent struct {
	ID           int64           `json:"id" db:"id"`
	MessageLogID int64           `json:"message_log_id" db:"message_log_id"`
	Phone        string          `json:"phone" db:"phone"`
	Status       RecipientStatus `json:"status" db:"status"`
	Reason       sql.NullString  `json:"reason,omitempty" db:"reason"`
	Applied      bool            `json:"applied" db:"applied"`
	ReceivedAt   time.Time       `json:"received_at" db:"received_at"`
}
