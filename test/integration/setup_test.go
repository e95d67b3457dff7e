package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	activityrepo "github.com/Ramsey-B/clover/internal/repositories/activity"
	childrepo "github.com/Ramsey-B/clover/internal/repositories/child"
	connectionrepo "github.com/Ramsey-B/clover/internal/repositories/connection"
	requestrepo "github.com/Ramsey-B/clover/internal/repositories/connectionrequest"
	invitationrepo "github.com/Ramsey-B/clover/internal/repositories/invitation"
	parentrepo "github.com/Ramsey-B/clover/internal/repositories/parent"
	pendingrepo "github.com/Ramsey-B/clover/internal/repositories/pendinginvitation"
	skeletonrepo "github.com/Ramsey-B/clover/internal/repositories/skeleton"
	"github.com/Ramsey-B/clover/pkg/connections"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/invitations"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/participants"
	"github.com/Ramsey-B/clover/pkg/propagation"
	"github.com/Ramsey-B/clover/pkg/registration"
	"github.com/Ramsey-B/clover/pkg/skeletons"
)

// testEngines wires the full engine stack against a real database, the way
// main does, minus Kafka and the graph projection.
type testEngines struct {
	db database.DB

	parents    *parentrepo.Repository
	children   *childrepo.Repository
	requests   *requestrepo.Repository
	conns      *connectionrepo.Repository
	skels      *skeletonrepo.Repository
	pendings   *pendingrepo.Repository
	invs       *invitationrepo.Repository
	activities *activityrepo.Repository

	ledger       *ledger.Ledger
	propagator   *propagation.Propagator
	registry     *skeletons.Registry
	merger       *skeletons.MergeEngine
	connections  *connections.Service
	invitations  *invitations.Service
	registration *registration.Service
	resolver     *participants.Resolver
}

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// getTestDB connects to the test database. The schema must already be
// migrated (db/pg); tests create their own rows and never assume a clean
// database.
func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPass, dbName,
	)
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func setupEngines(t *testing.T) *testEngines {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	logger := getTestLogger()
	db := getTestDB(t)

	e := &testEngines{db: db}
	e.parents = parentrepo.NewRepository(db, logger)
	e.children = childrepo.NewRepository(db, logger)
	e.requests = requestrepo.NewRepository(db, logger)
	e.conns = connectionrepo.NewRepository(db, logger)
	e.skels = skeletonrepo.NewRepository(db, logger)
	e.pendings = pendingrepo.NewRepository(db, logger)
	e.invs = invitationrepo.NewRepository(db, logger)
	e.activities = activityrepo.NewRepository(db, logger)

	emitter := events.NewEmitter(nil, logger)
	e.ledger = ledger.NewLedger(db, logger, e.pendings, e.activities, e.children, e.parents, e.skels)
	e.propagator = propagation.NewPropagator(logger, e.ledger, e.invs, e.activities, e.children)
	e.registry = skeletons.NewRegistry(db, logger, e.skels, e.parents, e.children)
	e.merger = skeletons.NewMergeEngine(db, logger, e.skels, e.parents, e.children, e.requests, e.propagator)
	e.connections = connections.NewService(db, logger, e.parents, e.children, e.requests, e.conns, e.propagator, emitter, nil)
	e.invitations = invitations.NewService(logger, e.activities, e.invs, e.children, e.parents, emitter)
	e.registration = registration.NewService(db, logger, e.parents, e.children, e.merger, emitter)
	e.resolver = participants.NewResolver(logger, e.activities, e.invs, e.pendings, e.children, e.parents, e.conns, e.skels)

	return e
}

// uniqueEmail makes a contact method that cannot collide with rows left
// behind by earlier runs.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.New().String()[:8])
}

// registerFamily registers a parent with one child and returns both.
func registerFamily(t *testing.T, e *testEngines, displayName, email, childName string) (*models.Parent, *models.Child) {
	t.Helper()
	result, err := e.registration.Register(context.Background(), models.RegisterParentRequest{
		DisplayName: displayName,
		Email:       &email,
		Children:    []models.RegisterChildRequest{{Name: childName}},
	})
	require.NoError(t, err)
	require.Len(t, result.Children, 1)
	return result.Parent, &result.Children[0]
}

// connect drives a request through submission and acceptance.
func connect(t *testing.T, e *testEngines, requester, target *models.Child) *models.Connection {
	t.Helper()
	ctx := context.Background()

	req, err := e.connections.SubmitRequest(ctx, models.SubmitConnectionRequest{
		RequesterChildUUID: requester.UUID,
		TargetChildUUID:    &target.UUID,
	})
	require.NoError(t, err)

	result, err := e.connections.Respond(ctx, req.UUID, models.RespondActionAccept)
	require.NoError(t, err)
	require.NotNil(t, result.Connection)
	return result.Connection
}

func findParticipant(participants []models.Participant, childUUID string) *models.Participant {
	for i := range participants {
		if participants[i].ChildUUID == childUUID {
			return &participants[i]
		}
	}
	return nil
}
