package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// NetworkService mirrors active connections as a child graph. The relational
// store stays authoritative; the projection is best effort and rebuilt from
// it if the two drift.
type NetworkService struct {
	client *Client
	logger ectologger.Logger
}

// NewNetworkService creates a new network service
func NewNetworkService(client *Client, logger ectologger.Logger) *NetworkService {
	return &NetworkService{
		client: client,
		logger: logger,
	}
}

// ProjectConnection upserts both child nodes and the CONNECTED edge
func (s *NetworkService) ProjectConnection(ctx context.Context, conn *models.Connection, childA, childB *models.Child) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.ProjectConnection")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"connection_uuid": conn.UUID,
		"child_a_uuid":    childA.UUID,
		"child_b_uuid":    childB.UUID,
	})

	cypher := `
		MERGE (a:Child {uuid: $child_a_uuid})
		SET a.name = $child_a_name, a.parent_uuid = $child_a_parent
		MERGE (b:Child {uuid: $child_b_uuid})
		SET b.name = $child_b_name, b.parent_uuid = $child_b_parent
		MERGE (a)-[r:CONNECTED {uuid: $connection_uuid}]-(b)
		SET r.created_at = $created_at
		RETURN r`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"child_a_uuid":    childA.UUID,
			"child_a_name":    childA.Name,
			"child_a_parent":  childA.ParentUUID,
			"child_b_uuid":    childB.UUID,
			"child_b_name":    childB.Name,
			"child_b_parent":  childB.ParentUUID,
			"connection_uuid": conn.UUID,
			"created_at":      conn.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		log.WithError(err).Error("Failed to project connection into graph")
		return fmt.Errorf("failed to project connection into graph: %w", err)
	}

	log.Debug("Projected connection into graph")
	return nil
}

// RemoveConnection drops the projected edge when a connection is soft deleted
func (s *NetworkService) RemoveConnection(ctx context.Context, connectionUUID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.RemoveConnection")
	defer span.End()

	cypher := `
		MATCH ()-[r:CONNECTED {uuid: $connection_uuid}]-()
		DELETE r`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"connection_uuid": connectionUUID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connection_uuid": connectionUUID,
		}).Error("Failed to remove connection from graph")
		return fmt.Errorf("failed to remove connection from graph: %w", err)
	}
	return nil
}

// ConnectedChildUUIDs returns the UUIDs of every child directly connected to
// the given child in the projection
func (s *NetworkService) ConnectedChildUUIDs(ctx context.Context, childUUID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NetworkService.ConnectedChildUUIDs")
	defer span.End()

	cypher := `
		MATCH (c:Child {uuid: $uuid})-[:CONNECTED]-(other:Child)
		RETURN other.uuid AS uuid`

	records, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{"uuid": childUUID})
		if err != nil {
			return nil, err
		}
		var uuids []string
		for result.Next(ctx) {
			if v, ok := result.Record().Get("uuid"); ok {
				if s, ok := v.(string); ok {
					uuids = append(uuids, s)
				}
			}
		}
		return uuids, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"child_uuid": childUUID}).Error("Failed to query connected children")
		return nil, fmt.Errorf("failed to query connected children: %w", err)
	}

	uuids, _ := records.([]string)
	return uuids, nil
}
