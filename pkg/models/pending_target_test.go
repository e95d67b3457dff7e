package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePendingKey(t *testing.T) {
	childID := uuid.New().String()
	parentID := uuid.New().String()

	tests := []struct {
		name     string
		key      string
		expected PendingTarget
		wantErr  bool
	}{
		{
			name:     "child form",
			key:      "pending-child-" + childID,
			expected: PendingTarget{Kind: PendingTargetChild, UUID: childID},
		},
		{
			name:     "parent form",
			key:      "pending-" + parentID,
			expected: PendingTarget{Kind: PendingTargetParent, UUID: parentID},
		},
		{
			name:    "child form with bad uuid",
			key:     "pending-child-not-a-uuid",
			wantErr: true,
		},
		{
			name:    "parent form with bad uuid",
			key:     "pending-not-a-uuid",
			wantErr: true,
		},
		{
			name:    "unrecognized prefix",
			key:     "invited-" + childID,
			wantErr: true,
		},
		{
			name:    "empty",
			key:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ParsePendingKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, target)
		})
	}
}

func TestParsePendingKey_ChildFormNotMistakenForParentForm(t *testing.T) {
	// "pending-child-..." also matches the "pending-" prefix; the parser
	// must classify it as a child target, not a parent named "child-...".
	childID := uuid.New().String()
	target, err := ParsePendingKey("pending-child-" + childID)
	require.NoError(t, err)
	assert.Equal(t, PendingTargetChild, target.Kind)
	assert.Equal(t, childID, target.UUID)
}

func TestPendingTargetKeyRoundTrip(t *testing.T) {
	for _, kind := range []PendingTargetKind{PendingTargetParent, PendingTargetChild} {
		original := PendingTarget{Kind: kind, UUID: uuid.New().String()}
		parsed, err := ParsePendingKey(original.Key())
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	}
}

func TestPendingTargetValid(t *testing.T) {
	assert.True(t, PendingTarget{Kind: PendingTargetChild, UUID: uuid.New().String()}.Valid())
	assert.False(t, PendingTarget{Kind: "activity", UUID: uuid.New().String()}.Valid())
	assert.False(t, PendingTarget{Kind: PendingTargetParent, UUID: "nope"}.Valid())
}
