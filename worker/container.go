package worker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registration defaults.
const (
	DefaultScope     = "/"
	DefaultScriptURL = "/sw.js"
)

// Registration binds a worker script to a scope.
type Registration struct {
	Scope     string
	ScriptURL string

	worker *Worker
	done   chan struct{}
	err    error
}

// Worker returns the registered worker.
func (r *Registration) Worker() *Worker { return r.worker }

// Active reports whether the worker controls the scope.
func (r *Registration) Active() bool { return r.worker.State() == StateActive }

// stopped reports whether the worker's Run has returned.
func (r *Registration) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Factory builds the worker for a script URL.
type Factory func(scriptURL string) (*Worker, error)

// Container keeps at most one registration per scope and runs each worker
// until the container's context ends.
type Container struct {
	ctx     context.Context
	factory Factory

	mu   sync.Mutex
	regs map[string]*Registration
	g    errgroup.Group
}

// NewContainer creates a Container whose workers stop when ctx is done.
func NewContainer(ctx context.Context, factory Factory) *Container {
	return &Container{ctx: ctx, factory: factory, regs: make(map[string]*Registration)}
}

// Register starts a worker for scriptURL at scope. Registering a scope that
// already has a live worker for the same script returns the existing
// registration without starting another.
func (c *Container) Register(scriptURL, scope string) (*Registration, error) {
	if scriptURL == "" {
		scriptURL = DefaultScriptURL
	}
	if scope == "" {
		scope = DefaultScope
	}
	if !strings.HasSuffix(scope, "/") {
		scope += "/"
	}
	if !strings.HasPrefix(scope, strings.TrimSuffix(path.Dir(scriptURL), "/")+"/") {
		return nil, fmt.Errorf("%w: %s at %s", ErrInvalidScope, scriptURL, scope)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if reg, ok := c.regs[scope]; ok && reg.ScriptURL == scriptURL && !reg.stopped() {
		return reg, nil
	}

	w, err := c.factory(scriptURL)
	if err != nil {
		return nil, fmt.Errorf("worker: create %s: %w", scriptURL, err)
	}
	reg := &Registration{Scope: scope, ScriptURL: scriptURL, worker: w, done: make(chan struct{})}
	c.regs[scope] = reg

	c.g.Go(func() error {
		defer close(reg.done)
		reg.err = w.Run(c.ctx)
		if errors.Is(reg.err, ErrWorkerStopped) {
			return nil
		}
		return reg.err
	})
	return reg, nil
}

// Registration returns the registration for scope.
func (c *Container) Registration(scope string) (*Registration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.regs[scope]
	return reg, ok
}

// Controller returns the active worker for scope, if any.
func (c *Container) Controller(scope string) (*Worker, bool) {
	reg, ok := c.Registration(scope)
	if !ok || !reg.Active() {
		return nil, false
	}
	return reg.worker, true
}

// Ready waits until the worker for scope is active.
func (c *Container) Ready(ctx context.Context, scope string) (*Worker, error) {
	reg, ok := c.Registration(scope)
	if !ok {
		return nil, fmt.Errorf("worker: no registration for %s", scope)
	}
	return reg.worker, reg.worker.Ready(ctx)
}

// Wait blocks until every worker has stopped and returns the first error.
func (c *Container) Wait() error {
	return c.g.Wait()
}
