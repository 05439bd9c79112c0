package ugibdd

import (
	"context"
	"fmt"
	"time"
)

// Action types written to the action log.
const (
	LogEmployeeCreate         = "employee_create"
	LogEmployeeUpdate         = "employee_update"
	LogEmployeeDelete         = "employee_delete"
	LogEmployeePasswordChange = "employee_password_change"
	LogKuspCreate             = "kusp_create"
	LogKuspUpdate             = "kusp_update"
	LogKuspNote               = "kusp_note"
	LogKuspDelete             = "kusp_delete"
	LogProtocolCreate         = "protocol_create"
	LogProtocolUpdate         = "protocol_update"
	LogProtocolDelete         = "protocol_delete"
	LogProtocolExport         = "protocol_export"
	LogTsuCreate              = "tsu_create"
	LogTsuUpdate              = "tsu_update"
	LogTsuDelete              = "tsu_delete"
	LogTsuComplete            = "tsu_complete"
	LogTsuReopen              = "tsu_reopen"
	LogGuestSessionStart      = "guest_session_start"
	LogSessionTimeout         = "session_timeout"
	LogAdminPanelAccess       = "admin_panel_access"
	LogAdminTabSwitch         = "admin_tab_switch"
	LogKuspTicketSave         = "kusp_ticket_save"
)

// DefaultActionLogLimit is how many rows the action log keeps.
const DefaultActionLogLimit = 100

// skipped actions are accepted by Log and never stored.
var skipped = map[string]bool{
	LogKuspTicketSave:    true,
	LogGuestSessionStart: true,
	LogSessionTimeout:    true,
	LogAdminPanelAccess:  true,
	LogAdminTabSwitch:    true,
}

const (
	systemActorName  = "Система"
	unknownActorName = "Неизвестный"
)

// LogFilter narrows List.
type LogFilter struct {
	UserID     string
	ActionType string
	EntityType string
	EntityID   string
	DateFrom   time.Time
	DateTo     time.Time
	Limit      int
}

// ActionLogStore writes and reads the shared action log.
type ActionLogStore struct {
	deps
	limit int
}

// Log stores one action attributed to the current session. Failures are
// logged and never reach the caller.
func (s *ActionLogStore) Log(ctx context.Context, actionType string, details map[string]any, entityType, entityID string) {
	if skipped[actionType] {
		return
	}
	ctx = context.WithoutCancel(ctx)

	mode := s.session.CurrentMode()
	user := s.session.CurrentUser()
	entry := ActionLog{
		UserName:      systemActorName,
		ActionType:    actionType,
		ActionDetails: make(map[string]any, len(details)+2),
		EntityType:    entityType,
		EntityID:      entityID,
	}
	switch {
	case mode == ModeGuest:
		entry.UserName = GuestName
		entry.UserCategory = GuestName
	case user != nil:
		entry.UserName = user.Nickname
		if entry.UserName == "" {
			entry.UserName = unknownActorName
		}
		id := user.AuthUserID
		if id == "" {
			id = fmt.Sprint(user.ID)
		}
		entry.UserID = &id
		entry.UserCategory = string(user.Category)
	}
	for k, v := range details {
		entry.ActionDetails[k] = v
	}
	entry.ActionDetails["mode"] = string(mode)
	entry.ActionDetails["timestamp"] = s.clock.Now().UTC().Format(time.RFC3339)

	if err := s.table.Insert(ctx, TableActionLogs, &entry); err != nil {
		s.log.Errorw("failed to write action log", "action", actionType, "error", err)
		return
	}
	if _, err := s.trim(ctx, s.limit); err != nil {
		s.log.Errorw("failed to trim action log", "error", err)
	}
}

// List returns log rows newest first.
func (s *ActionLogStore) List(ctx context.Context, f LogFilter) ([]ActionLog, error) {
	ctx, cancel, actor, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	if err := Authorize(actor, EntityActionLog, ActionView, nil); err != nil {
		return nil, err
	}

	q := Query{OrderBy: "created_at", Descending: true, Limit: f.Limit}
	if f.UserID != "" {
		q.Filters = append(q.Filters, Eq("user_id", f.UserID))
	}
	if f.ActionType != "" {
		q.Filters = append(q.Filters, Eq("action_type", f.ActionType))
	}
	if f.EntityType != "" {
		q.Filters = append(q.Filters, Eq("entity_type", f.EntityType))
	}
	if f.EntityID != "" {
		q.Filters = append(q.Filters, Eq("entity_id", f.EntityID))
	}
	if !f.DateFrom.IsZero() {
		q.Filters = append(q.Filters, Filter{Column: "created_at", Op: OpGte, Value: f.DateFrom.UTC()})
	}
	if !f.DateTo.IsZero() {
		q.Filters = append(q.Filters, Filter{Column: "created_at", Op: OpLte, Value: f.DateTo.UTC()})
	}

	var rows []ActionLog
	if err := s.table.Select(ctx, TableActionLogs, q, &rows); err != nil {
		return nil, s.remote(ctx, "list action log", err)
	}
	return rows, nil
}

// Trim keeps the keep newest rows and returns how many were deleted.
func (s *ActionLogStore) Trim(ctx context.Context, keep int) (int, error) {
	ctx, cancel, actor, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	if err := Authorize(actor, EntityActionLog, ActionPurge, nil); err != nil {
		return 0, err
	}
	if keep < 0 {
		return 0, invalid("keep", "не меньше 0")
	}
	n, err := s.trim(ctx, keep)
	if err != nil {
		return 0, s.remote(ctx, "trim action log", err)
	}
	return n, nil
}

// Purge deletes rows older than the given number of days.
func (s *ActionLogStore) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	ctx, cancel, actor, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	if err := Authorize(actor, EntityActionLog, ActionPurge, nil); err != nil {
		return 0, err
	}
	if olderThanDays < 1 {
		return 0, invalid("days", "не меньше 1")
	}

	cutoff := Filter{Column: "created_at", Op: OpLt, Value: s.clock.Now().AddDate(0, 0, -olderThanDays).UTC()}
	n, err := s.table.Count(ctx, TableActionLogs, cutoff)
	if err != nil {
		return 0, s.remote(ctx, "count action log", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.table.Delete(ctx, TableActionLogs, cutoff); err != nil {
		return 0, s.remote(ctx, "purge action log", err)
	}
	return n, nil
}

// trim deletes the oldest rows beyond keep.
func (s *ActionLogStore) trim(ctx context.Context, keep int) (int, error) {
	count, err := s.table.Count(ctx, TableActionLogs)
	if err != nil {
		return 0, err
	}
	excess := int(count) - keep
	if excess <= 0 {
		return 0, nil
	}

	var oldest []struct {
		ID int64 `json:"id"`
	}
	q := Query{Columns: []string{"id"}, OrderBy: "created_at", Limit: excess}
	if err := s.table.Select(ctx, TableActionLogs, q, &oldest); err != nil {
		return 0, err
	}
	if len(oldest) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(oldest))
	for i, row := range oldest {
		ids[i] = row.ID
	}
	if err := s.table.Delete(ctx, TableActionLogs, In("id", ids)); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Summary renders a log row as a line of text for the log view.
func Summary(entry ActionLog) string {
	detail := func(key string) string {
		if v, ok := entry.ActionDetails[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
	switch entry.ActionType {
	case LogEmployeeCreate:
		return "Создал сотрудника: " + detail("nickname")
	case LogEmployeeUpdate:
		return "Изменил данные сотрудника: " + detail("nickname")
	case LogEmployeeDelete:
		return "Удалил сотрудника: " + detail("nickname")
	case LogEmployeePasswordChange:
		return "Изменил пароль сотрудника: " + detail("nickname")
	case LogKuspCreate:
		return "Создал запись КУСП №" + entry.EntityID
	case LogKuspUpdate:
		return "Обновил запись КУСП №" + entry.EntityID
	case LogKuspNote:
		return "Добавил заметку к записи КУСП №" + entry.EntityID
	case LogKuspDelete:
		return "Удалил запись КУСП №" + entry.EntityID
	case LogProtocolCreate:
		if v := detail("violator"); v != "" {
			return fmt.Sprintf("Создал протокол №%s (%s)", entry.EntityID, v)
		}
		return "Создал протокол №" + entry.EntityID
	case LogProtocolUpdate:
		return "Обновил протокол №" + entry.EntityID
	case LogProtocolDelete:
		if v := detail("violator"); v != "" {
			return fmt.Sprintf("Удалил протокол №%s (%s)", entry.EntityID, v)
		}
		return "Удалил протокол №" + entry.EntityID
	case LogProtocolExport:
		return "Экспортировал протокол №" + entry.EntityID
	case LogTsuCreate:
		return "Создал наводку: " + detail("target")
	case LogTsuUpdate:
		return "Обновил наводку: " + detail("target")
	case LogTsuDelete:
		return "Удалил наводку: " + detail("target")
	case LogTsuComplete:
		return "Отметил выполнение наводки: " + detail("target")
	case LogTsuReopen:
		return "Вернул наводку в работу: " + detail("target")
	}
	return entry.ActionType
}
