// Package health runs periodic liveness checks of the daemon's dependencies.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/GPTx-global/flight-oracle/oracle/log"
)

type Check interface {
	Check(ctx context.Context) error
	Name() string
}

type Status struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

type Checker struct {
	checks   map[string]Check
	mutex    sync.RWMutex
	interval time.Duration
	status   map[string]Status
	logger   hclog.Logger
}

func NewChecker(interval time.Duration) *Checker {
	return &Checker{
		checks:   make(map[string]Check),
		status:   make(map[string]Status),
		interval: interval,
		logger:   log.With("health"),
	}
}

// AddCheck registers a check. It counts as healthy until it first runs.
func (c *Checker) AddCheck(check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	name := check.Name()
	c.checks[name] = check
	c.status[name] = Status{Healthy: true, LastCheck: time.Now()}
}

// Start runs every check immediately and then once per interval until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.RunChecks(ctx)

	for {
		select {
		case <-ticker.C:
			c.RunChecks(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunChecks runs all checks concurrently and waits for them.
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make([]Check, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, check := range checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()

			err := check.Check(ctx)
			status := Status{Healthy: err == nil, LastCheck: time.Now()}
			if err != nil {
				status.LastError = err.Error()
				c.logger.Warn("health check failed", "check", check.Name(), "error", err)
			}

			c.mutex.Lock()
			c.status[check.Name()] = status
			c.mutex.Unlock()
		}(check)
	}
	wg.Wait()
}

func (c *Checker) GetStatus() map[string]Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]Status, len(c.status))
	for name, status := range c.status {
		result[name] = status
	}

	return result
}

func (c *Checker) IsHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for _, status := range c.status {
		if !status.Healthy {
			return false
		}
	}

	return true
}

// FuncCheck adapts a function to Check.
type FuncCheck struct {
	name      string
	checkFunc func(ctx context.Context) error
}

func NewFuncCheck(name string, checkFunc func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, checkFunc: checkFunc}
}

func (f *FuncCheck) Check(ctx context.Context) error {
	return f.checkFunc(ctx)
}

func (f *FuncCheck) Name() string {
	return f.name
}
