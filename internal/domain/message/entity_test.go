package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecipientStatusCanAdvanceTo(t *testing.T) {
	// Forward moves are allowed, including skips.
	assert.True(t, RecipientStatusPending.CanAdvanceTo(RecipientStatusSubmitted))
	assert.True(t, RecipientStatusPending.CanAdvanceTo(RecipientStatusDelivered))
	assert.True(t, RecipientStatusSubmitted.CanAdvanceTo(RecipientStatusSent))
	assert.True(t, RecipientStatusSent.CanAdvanceTo(RecipientStatusFailed))

	// Never backwards.
	assert.False(t, RecipientStatusSent.CanAdvanceTo(RecipientStatusSubmitted))
	assert.False(t, RecipientStatusSubmitted.CanAdvanceTo(RecipientStatusPending))

	// The first terminal status wins; terminal states never move again.
	assert.False(t, RecipientStatusDelivered.CanAdvanceTo(RecipientStatusFailed))
	assert.False(t, RecipientStatusFailed.CanAdvanceTo(RecipientStatusDelivered))
	assert.False(t, RecipientStatusDelivered.CanAdvanceTo(RecipientStatusDelivered))
}

func TestScheduledStatusTerminal(t *testing.T) {
	assert.False(t, ScheduledStatusPending.Terminal())
	assert.False(t, ScheduledStatusProcessing.Terminal())
	assert.True(t, ScheduledStatusSent.Terminal())
	assert.True(t, ScheduledStatusFailed.Terminal())
	assert.True(t, ScheduledStatusCancelled.Terminal())
}
