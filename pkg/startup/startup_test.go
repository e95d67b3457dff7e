package startup

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDependency struct {
	name      string
	dependsOn []string
	failures  int
	starts    int
	stops     int
	log       *[]string
}

func (f *fakeDependency) GetName() string { return f.name }

func (f *fakeDependency) DependsOn() []string { return f.dependsOn }

func (f *fakeDependency) Start(ctx context.Context) error {
	f.starts++
	*f.log = append(*f.log, "start:"+f.name)
	if f.failures > 0 {
		f.failures--
		return errors.New(f.name + " not ready")
	}
	return nil
}

func (f *fakeDependency) Stop(ctx context.Context) error {
	f.stops++
	*f.log = append(*f.log, "stop:"+f.name)
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartOrderFollowsDependencies(t *testing.T) {
	var log []string
	db := &fakeDependency{name: "database", log: &log}
	migrations := &fakeDependency{name: "migrations", dependsOn: []string{"database"}, log: &log}
	kafka := &fakeDependency{name: "kafka", log: &log}

	s := NewStartup(noopLogger(), 1)
	// Registered out of order on purpose; DependsOn must still win.
	s.AddDependency(migrations)
	s.AddDependency(db)
	s.AddDependency(kafka)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:database", "start:migrations", "start:kafka"}, log)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, "stop:kafka", log[3])
	assert.Equal(t, "stop:database", log[4])
	assert.Equal(t, "stop:migrations", log[5])
}

func TestRetryDoesNotRestartStartedDependencies(t *testing.T) {
	var log []string
	db := &fakeDependency{name: "database", log: &log}
	flaky := &fakeDependency{name: "graph", failures: 2, log: &log}

	s := NewStartup(noopLogger(), 5)
	s.AddDependency(db)
	s.AddDependency(flaky)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 1, db.starts, "database must not be restarted on retry")
	assert.Equal(t, 3, flaky.starts)
}

func TestStartFailsAfterMaxAttempts(t *testing.T) {
	var log []string
	broken := &fakeDependency{name: "database", failures: 10, log: &log}

	s := NewStartup(noopLogger(), 2)
	s.AddDependency(broken)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, broken.starts)
}

func TestUnregisteredDependencyIsAnError(t *testing.T) {
	var log []string
	orphan := &fakeDependency{name: "migrations", dependsOn: []string{"database"}, log: &log}

	s := NewStartup(noopLogger(), 1)
	s.AddDependency(orphan)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered")
}
