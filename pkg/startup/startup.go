// Package startup brings infrastructure dependencies up in declaration
// order, retrying the whole sequence with fibonacci backoff until it
// succeeds or the attempts run out.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// StartupDependency is one piece of infrastructure the service cannot run
// without. DependsOn names dependencies that must be started first.
type StartupDependency interface {
	GetName() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Startup struct {
	order       []StartupDependency
	byName      map[string]StartupDependency
	started     map[string]bool
	logger      ectologger.Logger
	maxAttempts int
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	return &Startup{
		byName:      make(map[string]StartupDependency),
		started:     make(map[string]bool),
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// AddDependency registers a dependency. Registration order is the default
// start order; DependsOn edges are honored on top of it.
func (s *Startup) AddDependency(dependency StartupDependency) {
	s.order = append(s.order, dependency)
	s.byName[dependency.GetName()] = dependency
}

// Start runs every registered dependency. Dependencies that started on an
// earlier attempt are not restarted.
func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, dependency := range s.order {
			if err := s.startDependency(ctx, dependency); err != nil {
				s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", dependency.GetName(), attempt)
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}

		s.logger.Infof("Retrying in %d seconds (attempt %d/%d)", a, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(a) * time.Second):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startDependency(ctx context.Context, dependency StartupDependency) error {
	name := dependency.GetName()
	if s.started[name] {
		return nil
	}

	for _, upstream := range dependency.DependsOn() {
		dep, ok := s.byName[upstream]
		if !ok {
			return fmt.Errorf("dependency '%s' depends on unregistered '%s'", name, upstream)
		}
		if err := s.startDependency(ctx, dep); err != nil {
			return err
		}
	}

	s.logger.WithField("dependency", name).Infof("Starting dependency '%s'", name)
	if err := dependency.Start(ctx); err != nil {
		return err
	}
	s.started[name] = true
	return nil
}

// Stop shuts started dependencies down in reverse start order. The first
// stop failure aborts the teardown.
func (s *Startup) Stop(ctx context.Context) error {
	for i := len(s.order) - 1; i >= 0; i-- {
		dependency := s.order[i]
		name := dependency.GetName()
		if !s.started[name] {
			continue
		}

		s.logger.WithField("dependency", name).Infof("Stopping dependency '%s'", name)
		if err := dependency.Stop(ctx); err != nil {
			s.logger.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			return err
		}
		s.started[name] = false
	}
	return nil
}
