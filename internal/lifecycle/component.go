// Package lifecycle starts long-running components in dependency order and
// stops them in reverse.
package lifecycle

import "context"

// Component is a long-running part of the process, such as the MCP server or
// the metrics endpoint.
type Component interface {
	// Start brings the component up. It must not block for the component's lifetime.
	Start(ctx context.Context) error
	// Stop shuts the component down within the context deadline.
	Stop(ctx context.Context) error
	// Name is used in logs and errors. It must not be empty.
	Name() string
}

// FuncComponent adapts a pair of functions to Component.
type FuncComponent struct {
	ComponentName string
	StartFunc     func(ctx context.Context) error
	StopFunc      func(ctx context.Context) error
}

// Start implements Component.
func (f *FuncComponent) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

// Stop implements Component.
func (f *FuncComponent) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}

// Name implements Component.
func (f *FuncComponent) Name() string {
	return f.ComponentName
}
