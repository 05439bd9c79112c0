package ugibdd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// DefaultKuspListLimit caps how many KUSP records a load fetches.
const DefaultKuspListLimit = 200

// History actions.
const (
	historyCreated = "Создан"
	historyUpdated = "Обновление"
	historyNote    = "Заметка"
)

// NewKusp is the input of KuspStore.Create.
type NewKusp struct {
	ReporterName string `json:"reporter_name" validate:"required"`
	Contact      string `json:"contact"`
	Type         string `json:"type"`
	Location     string `json:"location"`
	Priority     string `json:"priority"`
	Description  string `json:"description" validate:"required"`
	TicketNumber string `json:"ticket_number"`
}

// KuspUpdate is the input of KuspStore.Update.
type KuspUpdate struct {
	Status       KuspStatus `json:"status" validate:"required"`
	AssignedToID *string    `json:"assigned_to_id"`
}

// KuspTicket is what a guest may see about a record.
type KuspTicket struct {
	KuspNumber   string     `json:"kusp_number"`
	TicketNumber string     `json:"ticket_number"`
	ReporterName string     `json:"reporter_name"`
	Status       KuspStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// KuspStore caches the KUSP registry.
type KuspStore struct {
	deps
	limit int

	mu    sync.RWMutex
	cache []KuspRecord
}

// Load fetches the newest records and replaces the cache.
func (s *KuspStore) Load(ctx context.Context) ([]KuspRecord, error) {
	ctx, cancel, _, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	if err := s.load(ctx); err != nil {
		return nil, s.remote(ctx, "load KUSP", err)
	}
	return s.List(), nil
}

func (s *KuspStore) load(ctx context.Context) error {
	var rows []KuspRecord
	q := Query{OrderBy: "created_at", Descending: true, Limit: s.limit}
	if err := s.table.Select(ctx, TableKusps, q, &rows); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = rows
	s.mu.Unlock()
	return nil
}

func (s *KuspStore) refresh(ctx context.Context) {
	if err := s.load(ctx); err != nil {
		s.log.Warnw("failed to refresh KUSP", "error", err)
	}
}

func (s *KuspStore) reset() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// List returns the cached records.
func (s *KuspStore) List() []KuspRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]KuspRecord(nil), s.cache...)
}

// Get returns a cached record.
func (s *KuspStore) Get(id int64) (KuspRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.cache {
		if k.ID == id {
			return k, nil
		}
	}
	return KuspRecord{}, fmt.Errorf("%w: KUSP %d", ErrNotFound, id)
}

// Filter matches search against the number and the reporter name. An empty
// status matches every status.
func (s *KuspStore) Filter(search string, status KuspStatus) []KuspRecord {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(search))
	var out []KuspRecord
	for _, k := range s.List() {
		if status != "" && k.Status != status {
			continue
		}
		if needle != "" &&
			!strings.Contains(fold.String(k.KuspNumber), needle) &&
			!strings.Contains(fold.String(k.ReporterName), needle) {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (s *KuspStore) find(ctx context.Context, id int64) (KuspRecord, error) {
	if k, err := s.Get(id); err == nil {
		return k, nil
	}
	var rows []KuspRecord
	if err := s.table.Select(ctx, TableKusps, Query{Filters: []Filter{Eq("id", id)}, Limit: 1}, &rows); err != nil {
		return KuspRecord{}, s.remote(ctx, "load KUSP record", err)
	}
	if len(rows) == 0 {
		return KuspRecord{}, fmt.Errorf("%w: KUSP %d", ErrNotFound, id)
	}
	return rows[0], nil
}

// KuspNumber formats a registry number: the date, then the last six digits
// of the unix time in milliseconds.
func KuspNumber(t time.Time) string {
	ms := strconv.FormatInt(t.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return t.Format("20060102") + "-" + ms
}

// Create registers a new record. Any employee may create one.
func (s *KuspStore) Create(ctx context.Context, in NewKusp) (*KuspRecord, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	in.ReporterName = strings.TrimSpace(in.ReporterName)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	row := KuspRecord{
		KuspNumber:   KuspNumber(now),
		TicketNumber: strings.TrimSpace(in.TicketNumber),
		CreatedBy:    actor.Nickname,
		CreatedByID:  actor.ID,
		ReporterName: in.ReporterName,
		Contact:      strings.TrimSpace(in.Contact),
		Type:         in.Type,
		Location:     strings.TrimSpace(in.Location),
		Priority:     in.Priority,
		Description:  in.Description,
		Status:       KuspNew,
		History: []HistoryEntry{{
			TS:     now.UTC(),
			User:   actor.Nickname,
			Action: historyCreated,
			Note:   in.Description,
		}},
	}
	if actor.AuthUserID != "" {
		row.ReceivedByID = &actor.AuthUserID
	}
	if err := s.table.Insert(ctx, TableKusps, &row); err != nil {
		return nil, s.remote(ctx, "create KUSP", err)
	}

	s.refresh(ctx)
	s.record(ctx, LogKuspCreate, map[string]any{
		"reporter": row.ReporterName,
		"type":     row.Type,
	}, string(EntityKusp), row.KuspNumber)
	return &row, nil
}

// Update changes status and assignee and appends a history entry.
func (s *KuspStore) Update(ctx context.Context, id int64, in KuspUpdate) (*KuspRecord, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, EntityKusp, ActionEdit, record); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, invalid("status", "допустимые значения: new in_progress closed")
	}

	assignee := "не назначен"
	if in.AssignedToID != nil && *in.AssignedToID != "" {
		assignee = *in.AssignedToID
	} else {
		in.AssignedToID = nil
	}
	entry := HistoryEntry{
		TS:     s.clock.Now().UTC(),
		User:   actor.Nickname,
		Action: historyUpdated,
		Note:   fmt.Sprintf("Обновление: статус %s, ответственный %s", in.Status, assignee),
	}
	history := append(append([]HistoryEntry(nil), record.History...), entry)
	patch := map[string]any{
		"status":         in.Status,
		"assigned_to_id": in.AssignedToID,
		"history":        history,
	}
	if !sameRef(record.AssignedToID, in.AssignedToID) {
		patch["assigned_by_id"] = actor.AuthUserID
	}
	if err := s.table.Update(ctx, TableKusps, patch, Eq("id", id)); err != nil {
		return nil, s.remote(ctx, "update KUSP", err)
	}

	record.Status = in.Status
	record.AssignedToID = in.AssignedToID
	record.History = history
	s.refresh(ctx)
	s.record(ctx, LogKuspUpdate, map[string]any{
		"status":   in.Status,
		"assignee": assignee,
	}, string(EntityKusp), record.KuspNumber)
	return &record, nil
}

// AddNote appends a note to the record's history.
func (s *KuspStore) AddNote(ctx context.Context, id int64, note string) (*KuspRecord, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, EntityKusp, ActionEdit, record); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, invalid("note", "обязательное поле")
	}

	history := append(append([]HistoryEntry(nil), record.History...), HistoryEntry{
		TS:     s.clock.Now().UTC(),
		User:   actor.Nickname,
		Action: historyNote,
		Note:   note,
	})
	if err := s.table.Update(ctx, TableKusps, map[string]any{"history": history}, Eq("id", id)); err != nil {
		return nil, s.remote(ctx, "add KUSP note", err)
	}
	record.History = history
	s.refresh(ctx)
	s.record(ctx, LogKuspNote, nil, string(EntityKusp), record.KuspNumber)
	return &record, nil
}

// Delete removes a record.
func (s *KuspStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := Authorize(actor, EntityKusp, ActionDelete, nil); err != nil {
		return err
	}
	record, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.table.Delete(ctx, TableKusps, Eq("id", id)); err != nil {
		return s.remote(ctx, "delete KUSP", err)
	}
	s.refresh(ctx)
	s.record(ctx, LogKuspDelete, map[string]any{"reporter": record.ReporterName}, string(EntityKusp), record.KuspNumber)
	return nil
}

// FindByTicket looks a record up by the ticket number handed to the reporter.
// Guests may use it.
func (s *KuspStore) FindByTicket(ctx context.Context, ticket string) (*KuspTicket, error) {
	ctx, cancel, _, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return nil, invalid("ticket_number", "обязательное поле")
	}
	var rows []KuspTicket
	q := Query{
		Columns: []string{"kusp_number", "ticket_number", "reporter_name", "status", "created_at"},
		Filters: []Filter{Eq("ticket_number", ticket)},
		Limit:   1,
	}
	if err := s.table.Select(ctx, TableKusps, q, &rows); err != nil {
		return nil, s.remote(ctx, "find KUSP ticket", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticket)
	}
	return &rows[0], nil
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
