package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pfarch/pfarch/internal/logging"
)

// DefaultShutdownTimeout is the per-component grace period on Stop.
const DefaultShutdownTimeout = 30 * time.Second

// Manager starts components after their dependencies and stops them in
// reverse start order.
type Manager struct {
	mu              sync.Mutex
	components      []Component
	dependencies    map[Component][]Component
	started         []Component
	shutdownTimeout time.Duration
	logger          *logging.Logger
}

// NewManager creates a manager with DefaultShutdownTimeout.
func NewManager() *Manager {
	return &Manager{
		dependencies:    make(map[Component][]Component),
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          logging.GetLogger("lifecycle"),
	}
}

// Register adds a component. Dependencies must already be registered, which
// also rules out cycles.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if component.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}
	if slices.Contains(m.components, component) {
		return fmt.Errorf("component %s is already registered", component.Name())
	}
	for _, dep := range dependsOn {
		if !slices.Contains(m.components, dep) {
			return fmt.Errorf("dependency %s of %s is not registered", dep.Name(), component.Name())
		}
	}

	m.components = append(m.components, component)
	m.dependencies[component] = dependsOn
	m.logger.Debug("Registered component %s with %d dependencies", component.Name(), len(dependsOn))
	return nil
}

// Start starts every component. If one fails, the ones already started are
// stopped again and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = nil
	for _, component := range m.order() {
		m.logger.Info("Starting %s", component.Name())
		begin := time.Now()
		if err := component.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", component.Name(), err)
			m.stopStarted(context.Background(), 5*time.Second)
			return fmt.Errorf("failed to start %s: %w", component.Name(), err)
		}
		m.started = append(m.started, component)
		m.logger.Debug("%s started (took %dms)", component.Name(), time.Since(begin).Milliseconds())
	}
	return nil
}

// Stop stops started components in reverse order. Every component is given
// a chance to stop; their errors are joined.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopStarted(ctx, m.shutdownTimeout)
}

func (m *Manager) stopStarted(ctx context.Context, timeout time.Duration) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		component := m.started[i]
		m.logger.Info("Stopping %s", component.Name())

		componentCtx, cancel := context.WithTimeout(ctx, timeout)
		err := component.Stop(componentCtx)
		cancel()
		if err != nil {
			m.logger.Error("Error stopping %s: %v", component.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", component.Name(), err))
		}
	}
	m.started = nil
	return errors.Join(errs...)
}

// order returns components with dependencies first, otherwise in
// registration order.
func (m *Manager) order() []Component {
	visited := make(map[Component]bool, len(m.components))
	sorted := make([]Component, 0, len(m.components))
	var visit func(Component)
	visit = func(c Component) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, dep := range m.dependencies[c] {
			visit(dep)
		}
		sorted = append(sorted, c)
	}
	for _, c := range m.components {
		visit(c)
	}
	return sorted
}

// Running reports whether the component has started and not stopped.
func (m *Manager) Running(component Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.started, component)
}

// SetShutdownTimeout sets the per-component grace period used by Stop.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}
