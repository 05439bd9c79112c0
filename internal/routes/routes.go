package routes

import (
	"github.com/bohemiyan/ugibdd"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handlers serves the records service over HTTP.
type Handlers struct {
	svc *ugibdd.Service
	log *zap.SugaredLogger
}

func Setup(app *fiber.App, svc *ugibdd.Service, log *zap.SugaredLogger) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &Handlers{svc: svc, log: log}

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))

	api := app.Group("/api/v1", h.Activity)

	session := api.Group("/session")
	session.Get("/", h.CurrentSession)
	session.Post("/login", h.Login)
	session.Post("/guest", h.StartGuest)
	session.Post("/logout", h.Logout)
	session.Post("/ping", h.Ping)

	api.Get("/route", h.Route)
	api.Get("/notices", h.Notices)

	guest := api.Group("/guest", h.RequireMode(ugibdd.ModeGuest, ugibdd.ModeEmployee))
	guest.Get("/kusp/:ticket", h.FindKuspTicket)
	guest.Get("/protocols", h.FindProtocolsByLicense)

	staff := h.RequireMode(ugibdd.ModeEmployee)
	api.Post("/refresh", staff, h.RefreshAll)
	api.Get("/permissions", staff, h.Permissions)

	employees := api.Group("/employees", staff)
	employees.Get("/", h.ListEmployees)
	employees.Get("/departments", h.Departments)
	employees.Get("/manageable", h.ManageableEmployees)
	employees.Get("/assignable", h.AssignableEmployees)
	employees.Get("/:id", h.GetEmployee)
	employees.Post("/", h.Require(ugibdd.EntityEmployee, ugibdd.ActionManage), h.CreateEmployee)
	employees.Patch("/:id", h.UpdateEmployee)
	employees.Delete("/:id", h.DeleteEmployee)

	kusp := api.Group("/kusp", staff)
	kusp.Get("/", h.ListKusp)
	kusp.Get("/:id", h.GetKusp)
	kusp.Post("/", h.CreateKusp)
	kusp.Patch("/:id", h.UpdateKusp)
	kusp.Post("/:id/notes", h.AddKuspNote)
	kusp.Delete("/:id", h.Require(ugibdd.EntityKusp, ugibdd.ActionDelete), h.DeleteKusp)

	protocols := api.Group("/protocols", staff)
	protocols.Get("/", h.ListProtocols)
	protocols.Get("/next-number", h.NextProtocolNumber)
	protocols.Get("/:id", h.GetProtocol)
	protocols.Get("/:id/export", h.Require(ugibdd.EntityProtocol, ugibdd.ActionExport), h.ExportProtocol)
	protocols.Post("/", h.CreateProtocol)
	protocols.Put("/:id", h.UpdateProtocol)
	protocols.Delete("/:id", h.Require(ugibdd.EntityProtocol, ugibdd.ActionDelete), h.DeleteProtocol)

	tsu := api.Group("/tsu", staff)
	tsu.Get("/", h.ListTsu)
	tsu.Get("/:id", h.GetTsu)
	tsu.Get("/:id/command", h.TsuCommand)
	tsu.Post("/", h.CreateTsu)
	tsu.Put("/:id", h.UpdateTsu)
	tsu.Delete("/:id", h.DeleteTsu)
	tsu.Post("/:id/complete", h.Require(ugibdd.EntityTsu, ugibdd.ActionComplete), h.CompleteTsu)
	tsu.Post("/:id/reopen", h.Require(ugibdd.EntityTsu, ugibdd.ActionComplete), h.ReopenTsu)

	logs := api.Group("/logs", staff)
	logs.Get("/", h.Require(ugibdd.EntityActionLog, ugibdd.ActionView), h.ListLogs)
	logs.Post("/trim", h.Require(ugibdd.EntityActionLog, ugibdd.ActionPurge), h.TrimLogs)
	logs.Delete("/", h.Require(ugibdd.EntityActionLog, ugibdd.ActionPurge), h.PurgeLogs)
}
