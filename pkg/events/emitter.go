// Package events handles event emission for connection lifecycle changes.
// Emission always happens after the producing transaction commits; a Kafka
// failure is logged and swallowed so it can never undo committed state.
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/propagation"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Emitter publishes domain events. With a nil producer (Kafka disabled) every
// emit is a no-op.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitConnectionActivated emits a connection.activated event
func (e *Emitter) EmitConnectionActivated(ctx context.Context, conn *models.Connection, childAUUID, childBUUID string) {
	if e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitConnectionActivated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"connection_uuid": conn.UUID,
		"child_a_uuid":    childAUUID,
		"child_b_uuid":    childBUUID,
	})

	event := &kafka.ConnectionEvent{
		EventType: "connection.activated",
		SubjectID: conn.UUID,
		Data:      data,
	}

	if err := e.producer.PublishConnectionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit connection.activated event")
	}
}

// EmitInvitationsCreated emits invitation.created events for invitations a
// propagation pass delivered
func (e *Emitter) EmitInvitationsCreated(ctx context.Context, invitations []models.ActivityInvitation) {
	if e.producer == nil || len(invitations) == 0 {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitInvitationsCreated")
	defer span.End()

	events := make([]*kafka.ConnectionEvent, 0, len(invitations))
	for i := range invitations {
		inv := &invitations[i]
		data, _ := json.Marshal(map[string]any{
			"invitation_uuid": inv.UUID,
			"child_uuid":      inv.InvitedChildUUID,
			"status":          inv.Status,
		})
		events = append(events, &kafka.ConnectionEvent{
			EventType: "invitation.created",
			SubjectID: inv.UUID,
			Data:      data,
		})
	}

	if err := e.producer.PublishConnectionEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit invitation.created events")
	}
}

// EmitConnectionCandidates emits activity.connection_candidate events for
// hosts who opted into auto-notify on new connections
func (e *Emitter) EmitConnectionCandidates(ctx context.Context, candidates []propagation.ConnectionCandidate) {
	if e.producer == nil || len(candidates) == 0 {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitConnectionCandidates")
	defer span.End()

	events := make([]*kafka.ConnectionEvent, 0, len(candidates))
	for _, c := range candidates {
		data, _ := json.Marshal(map[string]any{
			"activity_uuid": c.Activity.UUID,
			"child_uuid":    c.Child.UUID,
		})
		events = append(events, &kafka.ConnectionEvent{
			EventType: "activity.connection_candidate",
			SubjectID: c.Activity.UUID,
			Data:      data,
		})
	}

	if err := e.producer.PublishConnectionEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit activity.connection_candidate events")
	}
}

// EmitSkeletonMerged emits a skeleton.merged event per merged account
func (e *Emitter) EmitSkeletonMerged(ctx context.Context, accounts []models.SkeletonAccount, parentUUID string, result models.MergeResult) {
	if e.producer == nil || len(accounts) == 0 {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSkeletonMerged")
	defer span.End()

	events := make([]*kafka.ConnectionEvent, 0, len(accounts))
	for i := range accounts {
		acct := &accounts[i]
		data, _ := json.Marshal(map[string]any{
			"skeleton_account_uuid": acct.UUID,
			"parent_uuid":           parentUUID,
			"children_created":      result.ChildrenCreated,
			"requests_converted":    result.RequestsConverted,
		})
		events = append(events, &kafka.ConnectionEvent{
			EventType: "skeleton.merged",
			SubjectID: acct.UUID,
			Data:      data,
		})
	}

	if err := e.producer.PublishConnectionEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit skeleton.merged events")
	}
}
