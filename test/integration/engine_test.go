package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

// TestPendingInvitationConvertsOnAccept walks the main deferred-invitation
// path: the host queues an invitation for a family they are not connected to
// yet, and the invitation is delivered the moment the connection activates.
func TestPendingInvitationConvertsOnAccept(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	host, hostChild := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	other, otherChild := registerFamily(t, e, "Pat", uniqueEmail("pat"), "Riley")

	// auto-notify is off: conversion of an explicitly queued invitation must
	// not depend on it.
	activity, err := e.activities.Create(ctx, "Soccer practice", host.ID, hostChild.ID, false)
	require.NoError(t, err)

	parentKey := models.PendingTarget{Kind: models.PendingTargetParent, UUID: other.UUID}.Key()
	rows, err := e.ledger.AddPending(ctx, activity.UUID, models.AddPendingInvitationsRequest{
		PendingKeys: []string{parentKey},
		Message:     "join us saturday",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	t.Run("pending row resolves before connection", func(t *testing.T) {
		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)

		p := findParticipant(participants, otherChild.UUID)
		require.NotNil(t, p, "parent-keyed row should surface the family's child")
		assert.Equal(t, models.ParticipantStatusPendingConnection, p.Status)
		assert.Equal(t, models.InvitationTypePendingInvitation, p.InvitationType)
	})

	connect(t, e, hostChild, otherChild)

	t.Run("ledger row is consumed", func(t *testing.T) {
		remaining, err := e.ledger.ListByActivity(ctx, activity.UUID)
		require.NoError(t, err)
		assert.Empty(t, remaining)
	})

	t.Run("invitation is delivered with the queued message", func(t *testing.T) {
		invs, err := e.invs.ListByActivity(ctx, activity.ID)
		require.NoError(t, err)
		require.Len(t, invs, 1)
		assert.Equal(t, models.ActivityInvitationStatusPending, invs[0].Status)
		assert.Equal(t, "join us saturday", invs[0].Message)
		assert.Equal(t, otherChild.UUID, invs[0].InvitedChildUUID)
	})

	t.Run("participant is now a real invitee", func(t *testing.T) {
		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)

		p := findParticipant(participants, otherChild.UUID)
		require.NotNil(t, p)
		assert.Equal(t, models.InvitationTypeInvitation, p.InvitationType)
		assert.Equal(t, models.ParticipantStatusConnected, p.Status)
	})
}

// TestPendingTargetDedup registers both key shapes for the same child; the
// participant list must show the child once, and conversion must deliver
// exactly one invitation.
func TestPendingTargetDedup(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	host, hostChild := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	other, otherChild := registerFamily(t, e, "Pat", uniqueEmail("pat"), "Riley")

	activity, err := e.activities.Create(ctx, "Book club", host.ID, hostChild.ID, false)
	require.NoError(t, err)

	keys := []string{
		models.PendingTarget{Kind: models.PendingTargetParent, UUID: other.UUID}.Key(),
		models.PendingTarget{Kind: models.PendingTargetChild, UUID: otherChild.UUID}.Key(),
	}
	rows, err := e.ledger.AddPending(ctx, activity.UUID, models.AddPendingInvitationsRequest{PendingKeys: keys})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	t.Run("child appears once before conversion", func(t *testing.T) {
		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)

		count := 0
		for _, p := range participants {
			if p.ChildUUID == otherChild.UUID {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	connect(t, e, hostChild, otherChild)

	t.Run("both rows consumed, one invitation delivered", func(t *testing.T) {
		remaining, err := e.ledger.ListByActivity(ctx, activity.UUID)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		invs, err := e.invs.ListByActivity(ctx, activity.ID)
		require.NoError(t, err)
		assert.Len(t, invs, 1)
	})
}

// TestAcceptIsIdempotent accepts the same request twice and checks that the
// second accept reuses the connection instead of re-propagating.
func TestAcceptIsIdempotent(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	host, hostChild := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	_, otherChild := registerFamily(t, e, "Pat", uniqueEmail("pat"), "Riley")

	activity, err := e.activities.Create(ctx, "Chess night", host.ID, hostChild.ID, false)
	require.NoError(t, err)

	childKey := models.PendingTarget{Kind: models.PendingTargetChild, UUID: otherChild.UUID}.Key()
	_, err = e.ledger.AddPending(ctx, activity.UUID, models.AddPendingInvitationsRequest{PendingKeys: []string{childKey}})
	require.NoError(t, err)

	req, err := e.connections.SubmitRequest(ctx, models.SubmitConnectionRequest{
		RequesterChildUUID: hostChild.UUID,
		TargetChildUUID:    &otherChild.UUID,
	})
	require.NoError(t, err)

	first, err := e.connections.Respond(ctx, req.UUID, models.RespondActionAccept)
	require.NoError(t, err)
	require.NotNil(t, first.Connection)

	second, err := e.connections.Respond(ctx, req.UUID, models.RespondActionAccept)
	require.NoError(t, err)
	require.NotNil(t, second.Connection)
	assert.Equal(t, first.Connection.UUID, second.Connection.UUID)

	invs, err := e.invs.ListByActivity(ctx, activity.ID)
	require.NoError(t, err)
	assert.Len(t, invs, 1, "second accept must not deliver another invitation")

	t.Run("conflicting answer is rejected", func(t *testing.T) {
		_, err := e.connections.Respond(ctx, req.UUID, models.RespondActionReject)
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})
}

// TestSkeletonMergeConvertsQueuedWork registers a request against an
// unregistered contact, queues a pending invitation for the placeholder
// child, then registers the real parent and checks everything converted.
func TestSkeletonMergeConvertsQueuedWork(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	host, hostChild := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	_, requesterChild := registerFamily(t, e, "Sam", uniqueEmail("sam"), "Jordan")

	contact := uniqueEmail("newcomer")
	skel, err := e.registry.RegisterRequest(ctx, models.CreateSkeletonRequest{
		ContactMethod:      contact,
		ContactType:        models.ContactTypeEmail,
		RequesterChildUUID: requesterChild.UUID,
		TargetChildName:    "Casey",
		Message:            "met at the park",
	})
	require.NoError(t, err)
	require.False(t, skel.Account.IsMerged)

	activity, err := e.activities.Create(ctx, "Picnic", host.ID, hostChild.ID, false)
	require.NoError(t, err)

	skelKey := models.PendingTarget{Kind: models.PendingTargetChild, UUID: skel.Child.UUID}.Key()
	_, err = e.ledger.AddPending(ctx, activity.UUID, models.AddPendingInvitationsRequest{PendingKeys: []string{skelKey}})
	require.NoError(t, err)

	t.Run("placeholder child shows as pending participant", func(t *testing.T) {
		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)

		p := findParticipant(participants, skel.Child.UUID)
		require.NotNil(t, p)
		assert.Equal(t, "Casey", p.ChildName)
		assert.Equal(t, models.ParticipantStatusPendingConnection, p.Status)
	})

	result, err := e.registration.Register(ctx, models.RegisterParentRequest{
		DisplayName: "Casey's Parent",
		Email:       &contact,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Merge)
	assert.Equal(t, 1, result.Merge.ChildrenCreated)
	assert.Equal(t, 1, result.Merge.RequestsConverted)
	require.Len(t, result.Children, 1)
	casey := result.Children[0]
	assert.Equal(t, "Casey", casey.Name)

	t.Run("queued request became a real pending request", func(t *testing.T) {
		reqs, err := e.connections.ListRequestsForChild(ctx, requesterChild.UUID, nil)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, models.ConnectionRequestStatusPending, reqs[0].Status)
		assert.Equal(t, "Casey", reqs[0].TargetChildName)
		assert.Equal(t, "met at the park", reqs[0].Message)
	})

	t.Run("pending invitation converted to the real child", func(t *testing.T) {
		remaining, err := e.ledger.ListByActivity(ctx, activity.UUID)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		invs, err := e.invs.ListByActivity(ctx, activity.ID)
		require.NoError(t, err)
		require.Len(t, invs, 1)
		assert.Equal(t, casey.UUID, invs[0].InvitedChildUUID)
		assert.Equal(t, models.ActivityInvitationStatusPending, invs[0].Status)
	})

	t.Run("merge is recorded on the skeleton account", func(t *testing.T) {
		acct, err := e.skels.FindAccountByUUID(ctx, skel.Account.UUID)
		require.NoError(t, err)
		require.NotNil(t, acct)
		assert.True(t, acct.IsMerged)
	})

	t.Run("re-running the merge is a no-op", func(t *testing.T) {
		outcome, err := e.merger.MergeOnRegistration(ctx, result.Parent)
		require.NoError(t, err)
		assert.Equal(t, 0, outcome.Result.ChildrenCreated)
		assert.Equal(t, 0, outcome.Result.RequestsConverted)
		assert.Empty(t, outcome.Accounts)

		kids, err := e.children.ListByParent(ctx, result.Parent.ID)
		require.NoError(t, err)
		assert.Len(t, kids, 1, "no second Casey")

		reqs, err := e.connections.ListRequestsForChild(ctx, requesterChild.UUID, nil)
		require.NoError(t, err)
		assert.Len(t, reqs, 1, "no second converted request")

		invs, err := e.invs.ListByActivity(ctx, activity.ID)
		require.NoError(t, err)
		assert.Len(t, invs, 1)
	})
}

// TestExistingInvitationAbsorbsPendingRow queues a ledger row for a child
// who was already invited by hand; activation must consume the row without
// delivering a second invitation.
func TestExistingInvitationAbsorbsPendingRow(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	host, hostChild := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	_, otherChild := registerFamily(t, e, "Pat", uniqueEmail("pat"), "Riley")

	activity, err := e.activities.Create(ctx, "Bike ride", host.ID, hostChild.ID, false)
	require.NoError(t, err)

	manual, err := e.invitations.Invite(ctx, activity.UUID, models.InviteRequest{
		InvitedChildUUID: &otherChild.UUID,
		Message:          "invited by hand",
	})
	require.NoError(t, err)

	childKey := models.PendingTarget{Kind: models.PendingTargetChild, UUID: otherChild.UUID}.Key()
	_, err = e.ledger.AddPending(ctx, activity.UUID, models.AddPendingInvitationsRequest{
		PendingKeys: []string{childKey},
		Message:     "queued later",
	})
	require.NoError(t, err)

	connect(t, e, hostChild, otherChild)

	remaining, err := e.ledger.ListByActivity(ctx, activity.UUID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "row must be consumed even without a delivery")

	invs, err := e.invs.ListByActivity(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, manual.UUID, invs[0].UUID)
	assert.Equal(t, "invited by hand", invs[0].Message, "the manual invitation is untouched")
}

// TestDirectInviteLifecycle covers the manual invitation path: duplicate
// detection, the connection-aware participant status, and withdrawal.
func TestDirectInviteLifecycle(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	host, hostChild := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	_, otherChild := registerFamily(t, e, "Pat", uniqueEmail("pat"), "Riley")
	_, thirdChild := registerFamily(t, e, "Kim", uniqueEmail("kim"), "Alex")

	activity, err := e.activities.Create(ctx, "Movie night", host.ID, hostChild.ID, false)
	require.NoError(t, err)

	inv, err := e.invitations.Invite(ctx, activity.UUID, models.InviteRequest{
		InvitedChildUUID: &otherChild.UUID,
		Message:          "bring snacks",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActivityInvitationStatusPending, inv.Status)

	t.Run("duplicate invite conflicts", func(t *testing.T) {
		_, err := e.invitations.Invite(ctx, activity.UUID, models.InviteRequest{
			InvitedChildUUID: &otherChild.UUID,
		})
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})

	t.Run("unconnected invitee shows as invited", func(t *testing.T) {
		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)

		p := findParticipant(participants, otherChild.UUID)
		require.NotNil(t, p)
		assert.Equal(t, models.ParticipantStatusInvited, p.Status)
	})

	t.Run("responding to an unknown invitation is not found", func(t *testing.T) {
		_, err := e.invitations.Respond(ctx, uuid.NewString(), true)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("status follows the live connection", func(t *testing.T) {
		conn := connect(t, e, hostChild, otherChild)

		conns, err := e.connections.ListConnectionsForChild(ctx, otherChild.UUID)
		require.NoError(t, err)
		require.Len(t, conns, 1)
		assert.Equal(t, conn.UUID, conns[0].UUID)

		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)
		p := findParticipant(participants, otherChild.UUID)
		require.NotNil(t, p)
		assert.Equal(t, models.ParticipantStatusConnected, p.Status)

		require.NoError(t, e.connections.Disconnect(ctx, conn.UUID))

		conns, err = e.connections.ListConnectionsForChild(ctx, otherChild.UUID)
		require.NoError(t, err)
		assert.Empty(t, conns, "soft-deleted connections do not list")

		participants, err = e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)
		p = findParticipant(participants, otherChild.UUID)
		require.NotNil(t, p)
		assert.Equal(t, models.ParticipantStatusInvited, p.Status, "no live connection, no connected status")
	})

	t.Run("withdrawn invitation leaves the list", func(t *testing.T) {
		thirdInv, err := e.invitations.Invite(ctx, activity.UUID, models.InviteRequest{
			InvitedChildUUID: &thirdChild.UUID,
		})
		require.NoError(t, err)
		require.NoError(t, e.invitations.Withdraw(ctx, thirdInv.UUID))

		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)
		assert.Nil(t, findParticipant(participants, thirdChild.UUID))
	})

	t.Run("accepting pins the status", func(t *testing.T) {
		accepted, err := e.invitations.Respond(ctx, inv.UUID, true)
		require.NoError(t, err)
		assert.Equal(t, models.ActivityInvitationStatusAccepted, accepted.Status)

		participants, err := e.resolver.Resolve(ctx, activity.UUID)
		require.NoError(t, err)
		p := findParticipant(participants, otherChild.UUID)
		require.NotNil(t, p)
		assert.Equal(t, models.ParticipantStatusAccepted, p.Status)
	})

	t.Run("settled invitation cannot be withdrawn", func(t *testing.T) {
		err := e.invitations.Withdraw(ctx, inv.UUID)
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})
}

// TestConnectionRequestGuards exercises the submission-side validation.
func TestConnectionRequestGuards(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	_, childA := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	_, childB := registerFamily(t, e, "Pat", uniqueEmail("pat"), "Riley")

	t.Run("duplicate pending request conflicts", func(t *testing.T) {
		_, err := e.connections.SubmitRequest(ctx, models.SubmitConnectionRequest{
			RequesterChildUUID: childA.UUID,
			TargetChildUUID:    &childB.UUID,
		})
		require.NoError(t, err)

		_, err = e.connections.SubmitRequest(ctx, models.SubmitConnectionRequest{
			RequesterChildUUID: childA.UUID,
			TargetChildUUID:    &childB.UUID,
		})
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})

	t.Run("same family is rejected", func(t *testing.T) {
		_, err := e.connections.SubmitRequest(ctx, models.SubmitConnectionRequest{
			RequesterChildUUID: childA.UUID,
			TargetChildUUID:    &childA.UUID,
		})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	})

	t.Run("unresolvable contact points at the skeleton flow", func(t *testing.T) {
		_, err := e.connections.SubmitRequest(ctx, models.SubmitConnectionRequest{
			RequesterChildUUID: childA.UUID,
			TargetContact: &models.ContactRef{
				Method: uniqueEmail("stranger"),
				Type:   models.ContactTypeEmail,
			},
		})
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	})

	t.Run("registered contact resolves to the family's child", func(t *testing.T) {
		email := uniqueEmail("reachable")
		_, targetChild := registerFamily(t, e, "Lee", email, "Quinn")

		req, err := e.connections.SubmitRequest(ctx, models.SubmitConnectionRequest{
			RequesterChildUUID: childA.UUID,
			TargetContact:      &models.ContactRef{Method: email, Type: models.ContactTypeEmail},
		})
		require.NoError(t, err)
		assert.Equal(t, targetChild.UUID, req.TargetChildUUID)
	})
}

// TestUnrelatedConnectionDoesNotFire checks the host scoping rule: a ledger
// row waiting on a child must not convert when that child connects to a
// family with no stake in the activity.
func TestUnrelatedConnectionDoesNotFire(t *testing.T) {
	e := setupEngines(t)
	ctx := context.Background()

	host, hostChild := registerFamily(t, e, "Dana", uniqueEmail("dana"), "Max")
	_, targetChild := registerFamily(t, e, "Pat", uniqueEmail("pat"), "Riley")
	_, bystanderChild := registerFamily(t, e, "Kim", uniqueEmail("kim"), "Alex")

	activity, err := e.activities.Create(ctx, "Camping trip", host.ID, hostChild.ID, false)
	require.NoError(t, err)

	childKey := models.PendingTarget{Kind: models.PendingTargetChild, UUID: targetChild.UUID}.Key()
	_, err = e.ledger.AddPending(ctx, activity.UUID, models.AddPendingInvitationsRequest{PendingKeys: []string{childKey}})
	require.NoError(t, err)

	// Target connects to a third family. The host is not on either side of
	// this connection, so the ledger row must stay put.
	connect(t, e, targetChild, bystanderChild)

	remaining, err := e.ledger.ListByActivity(ctx, activity.UUID)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	invs, err := e.invs.ListByActivity(ctx, activity.ID)
	require.NoError(t, err)
	assert.Empty(t, invs)

	// Now the host's own child connects; this is the edge the row waits on.
	connect(t, e, hostChild, targetChild)

	remaining, err = e.ledger.ListByActivity(ctx, activity.UUID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	invs, err = e.invs.ListByActivity(ctx, activity.ID)
	require.NoError(t, err)
	assert.Len(t, invs, 1)
}
