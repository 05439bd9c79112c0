package routes

import (
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/gofiber/fiber/v2"
)

// SessionResponse describes the current session.
type SessionResponse struct {
	Mode         ugibdd.Mode      `json:"mode"`
	User         *ugibdd.Employee `json:"user"`
	LastActivity time.Time        `json:"last_activity,omitzero"`
	Timeout      string           `json:"timeout"`
}

type loginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

func (h *Handlers) session() SessionResponse {
	s := h.svc.Session
	return SessionResponse{
		Mode:         s.CurrentMode(),
		User:         s.CurrentUser(),
		LastActivity: s.LastActivity(),
		Timeout:      s.Timeout().String(),
	}
}

func (h *Handlers) CurrentSession(c *fiber.Ctx) error {
	return c.JSON(h.session())
}

func (h *Handlers) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return h.fail(c, err)
	}
	if _, err := h.svc.Session.Login(c.UserContext(), req.Nickname, req.Password); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(h.session())
}

func (h *Handlers) StartGuest(c *fiber.Ctx) error {
	h.svc.Session.StartGuestSession(c.UserContext())
	return c.JSON(h.session())
}

func (h *Handlers) Logout(c *fiber.Ctx) error {
	h.svc.Session.Logout(c.UserContext())
	return c.JSON(h.session())
}

func (h *Handlers) Ping(c *fiber.Ctx) error {
	if err := h.svc.Session.Ping(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(h.session())
}

func (h *Handlers) Route(c *fiber.Ctx) error {
	return c.JSON(h.svc.Navigate(c.UserContext(), c.Query("fragment")))
}

func (h *Handlers) Notices(c *fiber.Ctx) error {
	board, ok := h.svc.Notices.(interface{ Drain() []ugibdd.Notice })
	if !ok {
		return c.JSON([]ugibdd.Notice{})
	}
	notices := board.Drain()
	if notices == nil {
		notices = []ugibdd.Notice{}
	}
	return c.JSON(notices)
}

func (h *Handlers) RefreshAll(c *fiber.Ctx) error {
	if err := h.svc.RefreshAll(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Permissions answers every entity-wide action for the current user.
func (h *Handlers) Permissions(c *fiber.Ctx) error {
	entities := []ugibdd.Entity{
		ugibdd.EntityEmployee, ugibdd.EntityKusp, ugibdd.EntityProtocol, ugibdd.EntityTsu, ugibdd.EntityActionLog,
	}
	var checks []ugibdd.BulkCheck
	for _, e := range entities {
		for _, a := range ugibdd.Actions(e) {
			checks = append(checks, ugibdd.BulkCheck{Entity: e, Action: a})
		}
	}
	out := make(map[ugibdd.Entity]map[ugibdd.Action]bool, len(entities))
	for _, r := range ugibdd.DecideBulk(h.svc.Session.CurrentUser(), checks) {
		if out[r.Entity] == nil {
			out[r.Entity] = map[ugibdd.Action]bool{}
		}
		out[r.Entity][r.Action] = r.Allowed
	}
	return c.JSON(out)
}
