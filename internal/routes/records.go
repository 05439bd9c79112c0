package routes

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/gofiber/fiber/v2"
)

func idParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ugibdd.ValidationError{Fields: map[string]string{"id": "некорректный идентификатор"}}
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: %v", ugibdd.ErrInvalidInput, err)
	}
	return nil
}

// Employees

func (h *Handlers) ListEmployees(c *fiber.Ctx) error {
	if _, err := h.svc.Employees.Load(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(nonNil(h.svc.Employees.Filter(c.Query("search"))))
}

func (h *Handlers) GetEmployee(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	e, err := h.svc.Employees.Get(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(e)
}

func (h *Handlers) Departments(c *fiber.Ctx) error {
	dept := c.Query("name")
	if dept != "" {
		return c.JSON(nonNil(h.svc.Employees.DepartmentMembers(dept)))
	}
	return c.JSON(nonNil(h.svc.Employees.Departments()))
}

func (h *Handlers) ManageableEmployees(c *fiber.Ctx) error {
	return c.JSON(nonNil(h.svc.Employees.Manageable(h.svc.Session.CurrentUser())))
}

func (h *Handlers) AssignableEmployees(c *fiber.Ctx) error {
	floor := ugibdd.CategoryRS
	if raw := c.Query("floor"); raw != "" {
		parsed, err := ugibdd.ParseCategory(raw)
		if err != nil {
			return h.fail(c, err)
		}
		floor = parsed
	}
	return c.JSON(nonNil(h.svc.Employees.Assignable(floor)))
}

func (h *Handlers) CreateEmployee(c *fiber.Ctx) error {
	var in ugibdd.NewEmployee
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	e, err := h.svc.Employees.Create(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (h *Handlers) UpdateEmployee(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in ugibdd.EmployeeUpdate
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	e, err := h.svc.Employees.Update(c.UserContext(), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(e)
}

func (h *Handlers) DeleteEmployee(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.Employees.Delete(c.UserContext(), id); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// KUSP

func (h *Handlers) ListKusp(c *fiber.Ctx) error {
	if _, err := h.svc.Kusp.Load(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(nonNil(h.svc.Kusp.Filter(c.Query("search"), ugibdd.KuspStatus(c.Query("status")))))
}

func (h *Handlers) GetKusp(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	k, err := h.svc.Kusp.Get(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(k)
}

func (h *Handlers) CreateKusp(c *fiber.Ctx) error {
	var in ugibdd.NewKusp
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	k, err := h.svc.Kusp.Create(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(k)
}

func (h *Handlers) UpdateKusp(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in ugibdd.KuspUpdate
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	k, err := h.svc.Kusp.Update(c.UserContext(), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(k)
}

func (h *Handlers) AddKuspNote(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in struct {
		Note string `json:"note"`
	}
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	k, err := h.svc.Kusp.AddNote(c.UserContext(), id, in.Note)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(k)
}

func (h *Handlers) DeleteKusp(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.Kusp.Delete(c.UserContext(), id); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Protocols

func (h *Handlers) ListProtocols(c *fiber.Ctx) error {
	if _, err := h.svc.Protocols.Load(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(nonNil(h.svc.Protocols.Filter(c.Query("search"), ugibdd.ProtocolStatus(c.Query("status")))))
}

func (h *Handlers) NextProtocolNumber(c *fiber.Ctx) error {
	n, err := h.svc.Protocols.NextNumber(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"protocol_number": n})
}

func (h *Handlers) GetProtocol(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	p, err := h.svc.Protocols.Get(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}

func (h *Handlers) ExportProtocol(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	doc, err := h.svc.Protocols.Export(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="protocol-%d.json"`, id))
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(doc)
}

func (h *Handlers) CreateProtocol(c *fiber.Ctx) error {
	var in ugibdd.ProtocolRecord
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	p, err := h.svc.Protocols.Create(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *Handlers) UpdateProtocol(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in ugibdd.ProtocolRecord
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	p, err := h.svc.Protocols.Update(c.UserContext(), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}

func (h *Handlers) DeleteProtocol(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.Protocols.Delete(c.UserContext(), id); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TSU orders

func (h *Handlers) ListTsu(c *fiber.Ctx) error {
	if _, err := h.svc.Tsu.Load(c.UserContext()); err != nil {
		return h.fail(c, err)
	}
	orders := h.svc.Tsu.Filter(c.Query("search"), ugibdd.TsuType(c.Query("type")), ugibdd.TsuStatus(c.Query("status")))
	return c.JSON(nonNil(orders))
}

func (h *Handlers) GetTsu(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	o, err := h.svc.Tsu.Get(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(o)
}

func (h *Handlers) TsuCommand(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	o, err := h.svc.Tsu.Get(id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"command": ugibdd.Command(o)})
}

func (h *Handlers) CreateTsu(c *fiber.Ctx) error {
	var in ugibdd.TsuInput
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	o, err := h.svc.Tsu.Create(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(o)
}

func (h *Handlers) UpdateTsu(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	var in ugibdd.TsuInput
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	o, err := h.svc.Tsu.Update(c.UserContext(), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(o)
}

func (h *Handlers) DeleteTsu(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.Tsu.Delete(c.UserContext(), id); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) CompleteTsu(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	o, err := h.svc.Tsu.Complete(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(o)
}

func (h *Handlers) ReopenTsu(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return h.fail(c, err)
	}
	o, err := h.svc.Tsu.Reopen(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(o)
}

// Guest lookups

func (h *Handlers) FindKuspTicket(c *fiber.Ctx) error {
	t, err := h.svc.Kusp.FindByTicket(c.UserContext(), c.Params("ticket"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(t)
}

func (h *Handlers) FindProtocolsByLicense(c *fiber.Ctx) error {
	rows, err := h.svc.Protocols.FindByLicense(c.UserContext(), c.Query("license"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(nonNil(rows))
}

// Action log

// LogEntry is an action log row with its rendered summary.
type LogEntry struct {
	ugibdd.ActionLog
	Summary string `json:"summary"`
}

func (h *Handlers) ListLogs(c *fiber.Ctx) error {
	f := ugibdd.LogFilter{
		UserID:     c.Query("user_id"),
		ActionType: c.Query("action_type"),
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Limit:      c.QueryInt("limit", ugibdd.DefaultActionLogLimit),
	}
	var err error
	if f.DateFrom, err = dateQuery(c, "from"); err != nil {
		return h.fail(c, err)
	}
	if f.DateTo, err = dateQuery(c, "to"); err != nil {
		return h.fail(c, err)
	}
	rows, err := h.svc.Logs.List(c.UserContext(), f)
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]LogEntry, len(rows))
	for i, r := range rows {
		out[i] = LogEntry{ActionLog: r, Summary: ugibdd.Summary(r)}
	}
	return c.JSON(out)
}

func (h *Handlers) TrimLogs(c *fiber.Ctx) error {
	var in struct {
		Keep int `json:"keep"`
	}
	if err := parseBody(c, &in); err != nil {
		return h.fail(c, err)
	}
	n, err := h.svc.Logs.Trim(c.UserContext(), in.Keep)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

func (h *Handlers) PurgeLogs(c *fiber.Ctx) error {
	n, err := h.svc.Logs.Purge(c.UserContext(), c.QueryInt("older_than_days", 0))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"deleted": n})
}

// dateQuery accepts a date or an RFC 3339 timestamp. A bare "to" date covers the whole day.
func dateQuery(c *fiber.Ctx, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, &ugibdd.ValidationError{Fields: map[string]string{key: "ожидается дата ГГГГ-ММ-ДД"}}
	}
	if key == "to" {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
