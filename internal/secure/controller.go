package secure

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/ScreenGuard/internal/events"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/bryanchriswhite/ScreenGuard/internal/surface"
)

// Runner executes work on the UI-affinity context
type Runner interface {
	Run(ctx context.Context, fn func() error) error
}

// Controller toggles the capture shield on the active surface.
// Mutations happen only on the runner; Blocked may be read from anywhere.
type Controller struct {
	runner   Runner
	provider surface.Provider
	notifier events.Notifier

	mu        sync.RWMutex
	blocked   bool
	appliedTo string
	raisedOn  surface.Surface
}

// NewController creates a secure display controller
func NewController(runner Runner, provider surface.Provider, notifier events.Notifier) *Controller {
	return &Controller{
		runner:   runner,
		provider: provider,
		notifier: notifier,
	}
}

// Blocked returns the process-wide secure flag state
func (c *Controller) Blocked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocked
}

// SetBlocked shows or hides the shield. With no active surface it reports
// success=false and no error, except that a shield still raised on a surface
// that lost focus is lowered. Repeating the current state on the same
// surface does not touch the surface again.
func (c *Controller) SetBlocked(ctx context.Context, blocked bool) (bool, error) {
	log := logger.WithComponent("secure")

	var success bool
	err := c.runner.Run(ctx, func() error {
		s, ok := c.provider.Current()
		if !ok {
			s = nil
		}

		if !blocked {
			lowered, err := c.lowerStale(s)
			if err != nil {
				return err
			}
			if lowered && s == nil {
				success = true
				return nil
			}
		}

		if s == nil {
			log.Debug().Bool("blocked", blocked).Msg("No active surface, secure flag unchanged")
			return nil
		}

		c.mu.RLock()
		unchanged := c.blocked == blocked && c.appliedTo == s.ID()
		c.mu.RUnlock()
		if unchanged {
			success = true
			return nil
		}

		if err := s.SetSecure(blocked); err != nil {
			return fmt.Errorf("failed to set secure flag on %s: %w", s.ID(), err)
		}

		c.mu.Lock()
		c.blocked = blocked
		c.appliedTo = s.ID()
		c.raisedOn = nil
		if blocked {
			c.raisedOn = s
		}
		c.mu.Unlock()

		success = true
		log.Info().
			Str("surface", s.ID()).
			Bool("blocked", blocked).
			Msg("Secure flag updated")
		return nil
	})

	if err != nil {
		log.Warn().Err(err).Bool("blocked", blocked).Msg("Secure flag toggle failed")
		success = false
	}

	if c.notifier != nil {
		c.notifier.Emit(events.New(events.TypePreventScreenshotChanged, events.PreventScreenshotChanged{
			IsPrevent: blocked,
			Success:   success,
		}))
	}
	return success, err
}

// lowerStale lowers the shield on a surface other than current that still
// holds it
func (c *Controller) lowerStale(current surface.Surface) (bool, error) {
	c.mu.RLock()
	held := c.raisedOn
	c.mu.RUnlock()
	if held == nil || (current != nil && held.ID() == current.ID()) {
		return false, nil
	}

	if err := held.SetSecure(false); err != nil {
		return false, fmt.Errorf("failed to clear secure flag on %s: %w", held.ID(), err)
	}

	c.mu.Lock()
	c.raisedOn = nil
	if current == nil {
		c.blocked = false
		c.appliedTo = ""
	}
	c.mu.Unlock()

	logger.WithComponent("secure").Info().
		Str("surface", held.ID()).
		Msg("Shield lowered on surface that lost focus")
	return true, nil
}
