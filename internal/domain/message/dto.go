// internal/domain/message/dto.go
package message

import "time"

type CreateScheduledMessageRequest struct {
	Body           string    `json:"body" binding:"required"`
	Recipients     []string  `json:"recipients"`
	RecipientQuery string    `json:"recipient_query"`
	Category       string    `json:"category"`
	ScheduledAt    time.Time `json:"scheduled_at" binding:"required"`
}

type SendMessageRequest struct {
	Body       string   `json:"body" binding:"required"`
	Recipients []string `json:"recipients" binding:"required,min=1"`
	Category   string   `json:"category"`
}

type ScheduledListFilters struct {
	Status   *ScheduledStatus `form:"status"`
	Category string           `form:"category"`
	Page     int              `form:"page"`
	PageSize int              `form:"page_size"`
}

func (f *ScheduledListFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

type ScheduledListResponse struct {
	Messages []ScheduledMessage `json:"messages"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// LogDetail is a MessageLog with its per-recipient sub-records.
type LogDetail struct {
	Log        *MessageLog `json:"log"`
	Recipients []Recipient `json:"recipients"`
}

// DeliveryCallback is the carrier's asynchronous per-recipient status report.
type DeliveryCallback struct {
	LogReference string          `json:"log_reference" binding:"required"`
	Phone        string          `json:"phone" binding:"required"`
	Status       RecipientStatus `json:"status" binding:"required"`
	Reason       string          `json:"reason"`
}

type DispatchStats struct {
	TotalScheduled int64 `json:"total_scheduled"`
	Pending        int64 `json:"pending"`
	Sent           int64 `json:"sent"`
	Failed         int64 `json:"failed"`
	Cancelled      int64 `json:"cancelled"`
}
