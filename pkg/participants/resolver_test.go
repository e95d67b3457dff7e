package participants

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestStatusForInvitation(t *testing.T) {
	tests := []struct {
		name      string
		status    models.ActivityInvitationStatus
		connected bool
		expected  models.ParticipantStatus
	}{
		{
			name:     "pending without connection is invited",
			status:   models.ActivityInvitationStatusPending,
			expected: models.ParticipantStatusInvited,
		},
		{
			name:      "pending with active connection is connected",
			status:    models.ActivityInvitationStatusPending,
			connected: true,
			expected:  models.ParticipantStatusConnected,
		},
		{
			name:     "accepted stays accepted",
			status:   models.ActivityInvitationStatusAccepted,
			expected: models.ParticipantStatusAccepted,
		},
		{
			name:      "accepted ignores connection state",
			status:    models.ActivityInvitationStatusAccepted,
			connected: true,
			expected:  models.ParticipantStatusAccepted,
		},
		{
			name:     "rejected shows declined",
			status:   models.ActivityInvitationStatusRejected,
			expected: models.ParticipantStatusDeclined,
		},
		{
			name:      "rejected ignores connection state",
			status:    models.ActivityInvitationStatusRejected,
			connected: true,
			expected:  models.ParticipantStatusDeclined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusForInvitation(tt.status, tt.connected))
		})
	}
}
