package routes

import (
	"errors"
	"fmt"
	"slices"

	"github.com/bohemiyan/ugibdd"
	"github.com/gofiber/fiber/v2"
)

// Activity expires an overdue session. Writes count as activity; reads do
// not, so polling for notices or session state lets an idle session lapse.
// Record reads and navigation ping through the service themselves.
func (h *Handlers) Activity(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if h.svc.Session.Check(ctx) {
		h.log.Infow("session expired before request", "path", c.Path())
	}
	if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
		return c.Next()
	}
	if err := h.svc.Session.Ping(ctx); err != nil &&
		!errors.Is(err, ugibdd.ErrNotAuthenticated) && !errors.Is(err, ugibdd.ErrSessionExpired) {
		h.log.Warnw("ping failed", "error", err)
	}
	return c.Next()
}

// RequireMode lets the request through only in one of modes.
func (h *Handlers) RequireMode(modes ...ugibdd.Mode) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mode := h.svc.Session.CurrentMode()
		if slices.Contains(modes, mode) {
			return c.Next()
		}
		if mode == ugibdd.ModeSignedOut {
			return h.fail(c, ugibdd.ErrNotAuthenticated)
		}
		return h.fail(c, fmt.Errorf("%w: %s session", ugibdd.ErrPermissionDenied, mode))
	}
}

// Require checks an entity-wide permission of the current user. Record
// scoped rules are checked again by the stores.
func (h *Handlers) Require(entity ugibdd.Entity, action ugibdd.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := h.svc.Session.CurrentUser()
		if actor == nil {
			return h.fail(c, ugibdd.ErrNotAuthenticated)
		}
		if err := ugibdd.Authorize(actor, entity, action, nil); err != nil {
			h.log.Infow("permission check failed", "user", actor.Nickname, "entity", entity, "action", action)
			return h.fail(c, err)
		}
		return c.Next()
	}
}
