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

// DefaultTsuExpirationDays is how long a new order stays active.
const DefaultTsuExpirationDays = 14

// Bounds of the type-specific order parameters.
const (
	maxLicenseDays = 4
	minStars       = 1
	maxStars       = 6
	regionDigits   = 2
)

// TsuInput is the input of TsuStore.Create and TsuStore.Update.
type TsuInput struct {
	Type          TsuType   `json:"type" validate:"required"`
	TargetNick    string    `json:"target_nick"`
	Amount        *int      `json:"amount"`
	Days          *int      `json:"days"`
	Stars         *int      `json:"stars"`
	CarPlate      string    `json:"car_plate"`
	CarRegion     string    `json:"car_region"`
	Reason        string    `json:"reason" validate:"required"`
	InitiatorNick string    `json:"initiator_nick" validate:"required"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TsuStore caches the TSU orders.
type TsuStore struct {
	deps
	expiration time.Duration

	mu    sync.RWMutex
	cache []TsuOrder
}

// Load fetches all orders newest first, then expires the overdue ones.
func (s *TsuStore) Load(ctx context.Context) ([]TsuOrder, error) {
	ctx, cancel, _, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	if err := s.load(ctx); err != nil {
		return nil, s.remote(ctx, "load TSU orders", err)
	}
	if _, err := s.expireOverdue(ctx); err != nil {
		return nil, err
	}
	return s.List(), nil
}

func (s *TsuStore) load(ctx context.Context) error {
	var rows []TsuOrder
	if err := s.table.Select(ctx, TableTsuOrders, Query{OrderBy: "created_at", Descending: true}, &rows); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = rows
	s.mu.Unlock()
	return nil
}

func (s *TsuStore) refresh(ctx context.Context) {
	if err := s.load(ctx); err != nil {
		s.log.Warnw("failed to refresh TSU orders", "error", err)
	}
}

func (s *TsuStore) reset() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// ExpireOverdue marks active orders past their expiry as expired and returns
// how many changed.
func (s *TsuStore) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, cancel, _, err := s.employee(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()
	return s.expireOverdue(ctx)
}

func (s *TsuStore) expireOverdue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var ids []int64
	for _, o := range s.List() {
		if o.Status == TsuActive && !o.ExpiresAt.IsZero() && o.ExpiresAt.Before(now) {
			ids = append(ids, o.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	patch := map[string]any{"status": TsuExpired}
	if err := s.table.Update(ctx, TableTsuOrders, patch, In("id", ids), Eq("status", TsuActive)); err != nil {
		return 0, s.remote(ctx, "expire TSU orders", err)
	}
	s.log.Infow("expired TSU orders", "count", len(ids))
	s.refresh(ctx)
	return len(ids), nil
}

// List returns the cached orders.
func (s *TsuStore) List() []TsuOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TsuOrder(nil), s.cache...)
}

// Get returns a cached order.
func (s *TsuStore) Get(id int64) (TsuOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.cache {
		if o.ID == id {
			return o, nil
		}
	}
	return TsuOrder{}, fmt.Errorf("%w: TSU order %d", ErrNotFound, id)
}

// Filter matches search against the target, the reason, the initiator and the
// plate. Empty type and status match everything.
func (s *TsuStore) Filter(search string, typ TsuType, status TsuStatus) []TsuOrder {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(search))
	var out []TsuOrder
	for _, o := range s.List() {
		if typ != "" && o.Type != typ {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		if needle != "" &&
			!strings.Contains(fold.String(o.TargetNick), needle) &&
			!strings.Contains(fold.String(o.Reason), needle) &&
			!strings.Contains(fold.String(o.InitiatorNick), needle) &&
			!strings.Contains(fold.String(o.CarPlate), needle) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *TsuStore) find(ctx context.Context, id int64) (TsuOrder, error) {
	if o, err := s.Get(id); err == nil {
		return o, nil
	}
	var rows []TsuOrder
	if err := s.table.Select(ctx, TableTsuOrders, Query{Filters: []Filter{Eq("id", id)}, Limit: 1}, &rows); err != nil {
		return TsuOrder{}, s.remote(ctx, "load TSU order", err)
	}
	if len(rows) == 0 {
		return TsuOrder{}, fmt.Errorf("%w: TSU order %d", ErrNotFound, id)
	}
	return rows[0], nil
}

// Create stores a new active order.
func (s *TsuStore) Create(ctx context.Context, in TsuInput) (*TsuOrder, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	row, err := s.order(in)
	if err != nil {
		return nil, err
	}
	row.CreatedByID = actor.AuthUserID
	row.CreatedByName = actor.Nickname
	if err := s.table.Insert(ctx, TableTsuOrders, &row); err != nil {
		return nil, s.remote(ctx, "create TSU order", err)
	}
	s.refresh(ctx)
	s.record(ctx, LogTsuCreate, map[string]any{
		"type":       row.Type,
		"target":     row.Target(),
		"reason":     row.Reason,
		"created_by": actor.Nickname,
	}, string(EntityTsu), strconv.FormatInt(row.ID, 10))
	return &row, nil
}

// Update replaces an order's fields. Saving puts the order back to active.
func (s *TsuStore) Update(ctx context.Context, id int64, in TsuInput) (*TsuOrder, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, EntityTsu, ActionEdit, current); err != nil {
		return nil, err
	}
	next, err := s.order(in)
	if err != nil {
		return nil, err
	}
	patch := map[string]any{
		"type":           next.Type,
		"target_nick":    next.TargetNick,
		"amount":         next.Amount,
		"days":           next.Days,
		"stars":          next.Stars,
		"car_plate":      next.CarPlate,
		"car_region":     next.CarRegion,
		"reason":         next.Reason,
		"initiator_nick": next.InitiatorNick,
		"expires_at":     next.ExpiresAt,
		"status":         next.Status,
	}
	if err := s.table.Update(ctx, TableTsuOrders, patch, Eq("id", id)); err != nil {
		return nil, s.remote(ctx, "update TSU order", err)
	}

	next.ID = current.ID
	next.CreatedByID = current.CreatedByID
	next.CreatedByName = current.CreatedByName
	next.CompletedAt = current.CompletedAt
	next.CompletedByID = current.CompletedByID
	next.CompletedByName = current.CompletedByName
	next.CreatedAt = current.CreatedAt
	s.refresh(ctx)
	s.record(ctx, LogTsuUpdate, map[string]any{
		"type":       next.Type,
		"target":     next.Target(),
		"updated_by": actor.Nickname,
	}, string(EntityTsu), strconv.FormatInt(id, 10))
	return &next, nil
}

// Delete removes an order.
func (s *TsuStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := Authorize(actor, EntityTsu, ActionDelete, current); err != nil {
		return err
	}
	if err := s.table.Delete(ctx, TableTsuOrders, Eq("id", id)); err != nil {
		return s.remote(ctx, "delete TSU order", err)
	}
	s.refresh(ctx)
	s.record(ctx, LogTsuDelete, map[string]any{
		"type":       current.Type,
		"target":     current.Target(),
		"deleted_by": actor.Nickname,
	}, string(EntityTsu), strconv.FormatInt(id, 10))
	return nil
}

// Complete marks an active order as done by the current employee.
func (s *TsuStore) Complete(ctx context.Context, id int64) (*TsuOrder, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, EntityTsu, ActionComplete, current); err != nil {
		return nil, err
	}
	if current.Status != TsuActive {
		return nil, invalid("status", "наводка не активна")
	}

	now := s.clock.Now().UTC()
	patch := map[string]any{
		"status":            TsuCompleted,
		"completed_at":      now,
		"completed_by_id":   actor.AuthUserID,
		"completed_by_name": actor.Nickname,
	}
	if err := s.table.Update(ctx, TableTsuOrders, patch, Eq("id", id)); err != nil {
		return nil, s.remote(ctx, "complete TSU order", err)
	}
	current.Status = TsuCompleted
	current.CompletedAt = &now
	current.CompletedByID = &actor.AuthUserID
	current.CompletedByName = &actor.Nickname
	s.refresh(ctx)
	s.record(ctx, LogTsuComplete, map[string]any{
		"type":         current.Type,
		"target":       current.Target(),
		"completed_by": actor.Nickname,
	}, string(EntityTsu), strconv.FormatInt(id, 10))
	return &current, nil
}

// Reopen puts a completed or expired order back to active.
func (s *TsuStore) Reopen(ctx context.Context, id int64) (*TsuOrder, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, EntityTsu, ActionComplete, current); err != nil {
		return nil, err
	}
	if current.Status == TsuActive {
		return nil, invalid("status", "наводка уже активна")
	}

	patch := map[string]any{
		"status":            TsuActive,
		"completed_at":      nil,
		"completed_by_id":   nil,
		"completed_by_name": nil,
	}
	if err := s.table.Update(ctx, TableTsuOrders, patch, Eq("id", id)); err != nil {
		return nil, s.remote(ctx, "reopen TSU order", err)
	}
	current.Status = TsuActive
	current.CompletedAt = nil
	current.CompletedByID = nil
	current.CompletedByName = nil
	s.refresh(ctx)
	s.record(ctx, LogTsuReopen, map[string]any{
		"type":        current.Type,
		"target":      current.Target(),
		"reopened_by": actor.Nickname,
	}, string(EntityTsu), strconv.FormatInt(id, 10))
	return &current, nil
}

// order validates input and builds an active order from it. Parameters that
// do not belong to the type are dropped.
func (s *TsuStore) order(in TsuInput) (TsuOrder, error) {
	in.TargetNick = strings.TrimSpace(in.TargetNick)
	in.CarPlate = strings.TrimSpace(in.CarPlate)
	in.CarRegion = strings.TrimSpace(in.CarRegion)
	in.Reason = strings.TrimSpace(in.Reason)
	in.InitiatorNick = strings.TrimSpace(in.InitiatorNick)
	if err := validateStruct(in); err != nil {
		return TsuOrder{}, err
	}
	if !in.Type.Valid() {
		return TsuOrder{}, invalid("type", "неизвестный тип наводки")
	}

	o := TsuOrder{
		Type:          in.Type,
		Reason:        in.Reason,
		InitiatorNick: in.InitiatorNick,
		ExpiresAt:     in.ExpiresAt.UTC(),
		Status:        TsuActive,
	}
	if in.ExpiresAt.IsZero() {
		o.ExpiresAt = s.clock.Now().Add(s.expiration).UTC()
	}
	if in.Type.TargetsCar() {
		if in.CarPlate == "" {
			return TsuOrder{}, invalid("car_plate", "Введите госномер")
		}
		if len(in.CarRegion) != regionDigits || onlyDigits(in.CarRegion) != in.CarRegion {
			return TsuOrder{}, invalid("car_region", "Введите корректный регион (2 цифры)")
		}
		o.CarPlate = in.CarPlate
		o.CarRegion = in.CarRegion
		return o, nil
	}

	if in.TargetNick == "" {
		return TsuOrder{}, invalid("target_nick", "обязательное поле")
	}
	o.TargetNick = in.TargetNick
	switch in.Type {
	case TsuFine:
		if in.Amount == nil || *in.Amount <= 0 {
			return TsuOrder{}, invalid("amount", "Введите корректную сумму штрафа")
		}
		o.Amount = in.Amount
	case TsuLicense:
		if in.Days == nil || *in.Days < 0 || *in.Days > maxLicenseDays {
			return TsuOrder{}, invalid("days", "Введите количество дней от 0 до 4")
		}
		o.Days = in.Days
	case TsuWantedPerson:
		if in.Stars == nil || *in.Stars < minStars || *in.Stars > maxStars {
			return TsuOrder{}, invalid("stars", "Введите количество звёзд от 1 до 6")
		}
		o.Stars = in.Stars
	}
	return o, nil
}

// Command renders the game command that carries out the order.
func Command(o TsuOrder) string {
	initiator := o.InitiatorNick
	if initiator == "" {
		initiator = "Сотрудник"
	}
	optional := func(v *int, def string) string {
		if v == nil {
			return def
		}
		return strconv.Itoa(*v)
	}
	switch o.Type {
	case TsuFine:
		return fmt.Sprintf("/tsu %s %s %s by %s (УГИБДД)", o.TargetNick, optional(o.Amount, ""), o.Reason, initiator)
	case TsuLicense:
		return fmt.Sprintf("/takecarlic %s %s %s by %s (УГИБДД)", o.TargetNick, optional(o.Days, "0"), o.Reason, initiator)
	case TsuWantedPerson:
		return fmt.Sprintf("/su %s %s %s by %s (УГИБДД)", o.TargetNick, optional(o.Stars, "1"), o.Reason, initiator)
	case TsuWantedCar:
		return fmt.Sprintf("/addwcar %s %s %s by %s (УГИБДД)", o.CarPlate, o.CarRegion, o.Reason, initiator)
	case TsuWantedCarRemove:
		return fmt.Sprintf("/delwcar %s %s by %s", o.CarPlate, o.CarRegion, initiator)
	}
	return ""
}
