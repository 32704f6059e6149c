package delivery

import (
	"context"
	"testing"

	"tuma-service/internal/domain/message"
	xerrors "tuma-service/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLogStore struct {
	log        *message.MessageLog
	recipients map[string]*message.Recipient
	events     []message.DeliveryEvent
	nextID     int64
}

func newFakeLogStore(phones ...string) *fakeLogStore {
	s := &fakeLogStore{
		log: &message.MessageLog{
			ID:              1,
			Reference:       "LOG-test",
			TenantID:        1,
			TotalRecipients: len(phones),
			OverallStatus:   message.OverallStatusPending,
		},
		recipients: make(map[string]*message.Recipient),
	}
	for _, phone := range phones {
		s.nextID++
		s.recipients[phone] = &message.Recipient{
			ID:           s.nextID,
			MessageLogID: 1,
			Phone:        phone,
			Status:       message.RecipientStatusSubmitted,
		}
	}
	return s
}

func (s *fakeLogStore) FindByID(_ context.Context, id int64) (*message.MessageLog, error) {
	if id != s.log.ID {
		return nil, xerrors.ErrNotFound
	}
	copied := *s.log
	return &copied, nil
}

func (s *fakeLogStore) FindByReference(_ context.Context, ref string) (*message.MessageLog, error) {
	if ref != s.log.Reference {
		return nil, xerrors.ErrNotFound
	}
	copied := *s.log
	return &copied, nil
}

func (s *fakeLogStore) FindRecipient(_ context.Context, logID int64, phone string) (*message.Recipient, error) {
	r, ok := s.recipients[phone]
	if !ok || r.MessageLogID != logID {
		return nil, xerrors.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *fakeLogStore) ListRecipients(_ context.Context, logID int64) ([]message.Recipient, error) {
	var out []message.Recipient
	for _, r := range s.recipients {
		if r.MessageLogID == logID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeLogStore) AdvanceRecipient(_ context.Context, id int64, expected, next message.RecipientStatus, _ string) error {
	for _, r := range s.recipients {
		if r.ID == id {
			if r.Status != expected {
				return xerrors.ErrInvalidStateTransition
			}
			r.Status = next
			return nil
		}
	}
	return xerrors.ErrNotFound
}

func (s *fakeLogStore) AppendEvent(_ context.Context, e *message.DeliveryEvent) error {
	s.events = append(s.events, *e)
	return nil
}

func (s *fakeLogStore) RefreshCounters(_ context.Context, logID int64) (*message.MessageLog, error) {
	delivered, failed, terminal := 0, 0, 0
	for _, r := range s.recipients {
		switch r.Status {
		case message.RecipientStatusDelivered:
			delivered++
			terminal++
		case message.RecipientStatusFailed:
			failed++
			terminal++
		}
	}
	s.log.SuccessfulCount = delivered
	s.log.FailedCount = failed
	if terminal == s.log.TotalRecipients {
		switch {
		case failed == 0:
			s.log.OverallStatus = message.OverallStatusDelivered
		case delivered == 0:
			s.log.OverallStatus = message.OverallStatusFailed
		default:
			s.log.OverallStatus = message.OverallStatusPartial
		}
	}
	copied := *s.log
	return &copied, nil
}

func callback(phone string, status message.RecipientStatus) *message.DeliveryCallback {
	return &message.DeliveryCallback{LogReference: "LOG-test", Phone: phone, Status: status}
}

func TestIngestAdvancesRecipient(t *testing.T) {
	ctx := context.Background()
	store := newFakeLogStore("+1", "+2")
	tracker := NewTracker(store, zap.NewNop())

	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusSent)))
	assert.Equal(t, message.RecipientStatusSent, store.recipients["+1"].Status)

	require.Len(t, store.events, 1)
	assert.True(t, store.events[0].Applied)
}

func TestIngestAbsorbsRegression(t *testing.T) {
	ctx := context.Background()
	store := newFakeLogStore("+1")
	tracker := NewTracker(store, zap.NewNop())

	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusDelivered)))
	assert.Equal(t, message.RecipientStatusDelivered, store.recipients["+1"].Status)

	// A late "sent" after delivery is recorded but changes nothing.
	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusSent)))
	assert.Equal(t, message.RecipientStatusDelivered, store.recipients["+1"].Status)

	require.Len(t, store.events, 2)
	assert.True(t, store.events[0].Applied)
	assert.False(t, store.events[1].Applied)
}

func TestIngestFirstTerminalWins(t *testing.T) {
	ctx := context.Background()
	store := newFakeLogStore("+1")
	tracker := NewTracker(store, zap.NewNop())

	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusFailed)))
	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusDelivered)))

	assert.Equal(t, message.RecipientStatusFailed, store.recipients["+1"].Status)
	assert.Equal(t, message.OverallStatusFailed, store.log.OverallStatus)
}

func TestIngestDuplicateTerminalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeLogStore("+1", "+2")
	tracker := NewTracker(store, zap.NewNop())

	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusDelivered)))
	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusDelivered)))

	assert.Equal(t, 1, store.log.SuccessfulCount)
	require.Len(t, store.events, 2)
	assert.False(t, store.events[1].Applied)
}

func TestIngestFinalizesOverallStatus(t *testing.T) {
	ctx := context.Background()
	store := newFakeLogStore("+1", "+2", "+3")
	tracker := NewTracker(store, zap.NewNop())

	require.NoError(t, tracker.Ingest(ctx, callback("+1", message.RecipientStatusDelivered)))
	assert.Equal(t, message.OverallStatusPending, store.log.OverallStatus)

	require.NoError(t, tracker.Ingest(ctx, callback("+2", message.RecipientStatusDelivered)))
	require.NoError(t, tracker.Ingest(ctx, callback("+3", message.RecipientStatusFailed)))

	assert.Equal(t, message.OverallStatusPartial, store.log.OverallStatus)
	assert.Equal(t, 2, store.log.SuccessfulCount)
	assert.Equal(t, 1, store.log.FailedCount)
}

func TestIngestUnknownReference(t *testing.T) {
	ctx := context.Background()
	tracker := NewTracker(newFakeLogStore("+1"), zap.NewNop())

	err := tracker.Ingest(ctx, &message.DeliveryCallback{
		LogReference: "LOG-missing", Phone: "+1", Status: message.RecipientStatusSent,
	})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestGetDetail(t *testing.T) {
	ctx := context.Background()
	store := newFakeLogStore("+1", "+2")
	tracker := NewTracker(store, zap.NewNop())

	detail, err := tracker.GetDetail(ctx, 1, 1)
	require.NoError(t, err)
	assert.Len(t, detail.Recipients, 2)

	_, err = tracker.GetDetail(ctx, 2, 1)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}
