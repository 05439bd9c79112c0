package ugibdd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/cases"
)

// ProtocolPrefix opens every protocol number.
const ProtocolPrefix = "77AA"

// licenseDigits is the length of a driver licence number used for guest lookups.
const licenseDigits = 6

// ProtocolExport is the document produced by ProtocolStore.Export.
type ProtocolExport struct {
	ExportedAt time.Time      `json:"exported_at"`
	ExportedBy string         `json:"exported_by"`
	Protocol   ProtocolRecord `json:"protocol"`
}

// ProtocolStore caches the protocols table.
type ProtocolStore struct {
	deps

	mu    sync.RWMutex
	cache []ProtocolRecord
}

// Load fetches all protocols newest first and replaces the cache.
func (s *ProtocolStore) Load(ctx context.Context) ([]ProtocolRecord, error) {
	ctx, cancel, _, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	if err := s.load(ctx); err != nil {
		return nil, s.remote(ctx, "load protocols", err)
	}
	return s.List(), nil
}

func (s *ProtocolStore) load(ctx context.Context) error {
	var rows []ProtocolRecord
	if err := s.table.Select(ctx, TableProtocols, Query{OrderBy: "created_at", Descending: true}, &rows); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = rows
	s.mu.Unlock()
	return nil
}

func (s *ProtocolStore) refresh(ctx context.Context) {
	if err := s.load(ctx); err != nil {
		s.log.Warnw("failed to refresh protocols", "error", err)
	}
}

func (s *ProtocolStore) reset() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// List returns the cached protocols.
func (s *ProtocolStore) List() []ProtocolRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ProtocolRecord(nil), s.cache...)
}

// Get returns a cached protocol.
func (s *ProtocolStore) Get(id int64) (ProtocolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.cache {
		if p.ID == id {
			return p, nil
		}
	}
	return ProtocolRecord{}, fmt.Errorf("%w: protocol %d", ErrNotFound, id)
}

// Filter matches search against the number, the violator's full name, the
// offense description, the plate and the licence. Digits in search also match
// the normalized licence number.
func (s *ProtocolStore) Filter(search string, status ProtocolStatus) []ProtocolRecord {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(search))
	digits := onlyDigits(needle)
	var out []ProtocolRecord
	for _, p := range s.List() {
		if status != "" && p.Status != status {
			continue
		}
		if needle == "" {
			out = append(out, p)
			continue
		}
		name := fold.String(strings.Join([]string{p.ViolatorLastname, p.ViolatorFirstname, p.ViolatorPatronymic}, " "))
		if strings.Contains(fold.String(p.ProtocolNumber), needle) ||
			strings.Contains(name, needle) ||
			strings.Contains(fold.String(p.OffenseDescription), needle) ||
			strings.Contains(fold.String(p.VehicleLicensePlate), needle) ||
			strings.Contains(fold.String(p.ViolatorDriverLicense), needle) ||
			(digits != "" && strings.Contains(p.ViolatorLicenseNumber, digits)) {
			out = append(out, p)
		}
	}
	return out
}

func (s *ProtocolStore) find(ctx context.Context, id int64) (ProtocolRecord, error) {
	if p, err := s.Get(id); err == nil {
		return p, nil
	}
	var rows []ProtocolRecord
	if err := s.table.Select(ctx, TableProtocols, Query{Filters: []Filter{Eq("id", id)}, Limit: 1}, &rows); err != nil {
		return ProtocolRecord{}, s.remote(ctx, "load protocol", err)
	}
	if len(rows) == 0 {
		return ProtocolRecord{}, fmt.Errorf("%w: protocol %d", ErrNotFound, id)
	}
	return rows[0], nil
}

// NextNumber returns the prefix followed by the highest existing sequence plus one.
func (s *ProtocolStore) NextNumber(ctx context.Context) (string, error) {
	var rows []struct {
		ProtocolNumber string `json:"protocol_number"`
	}
	if err := s.table.Select(ctx, TableProtocols, Query{Columns: []string{"protocol_number"}}, &rows); err != nil {
		return "", s.remote(ctx, "load protocol numbers", err)
	}
	highest := 0
	for _, r := range rows {
		if !strings.HasPrefix(r.ProtocolNumber, ProtocolPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(r.ProtocolNumber, ProtocolPrefix))
		if err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%06d", ProtocolPrefix, highest+1), nil
}

// Create stores a new protocol authored by the current employee.
func (s *ProtocolStore) Create(ctx context.Context, in ProtocolRecord) (*ProtocolRecord, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	row := normalizeProtocol(in)
	if row.Status == "" {
		row.Status = ProtocolActive
	}
	if err := validateProtocol(row); err != nil {
		return nil, err
	}
	if row.ProtocolNumber == "" {
		if row.ProtocolNumber, err = s.NextNumber(ctx); err != nil {
			return nil, err
		}
	}
	row.ID = 0
	row.CreatedByID = actor.AuthUserID
	row.CreatedByName = actor.Nickname
	row.UpdatedByID = actor.AuthUserID
	row.UpdatedByName = actor.Nickname
	row.CreatedAt = time.Time{}
	row.UpdatedAt = time.Time{}

	if err := s.table.Insert(ctx, TableProtocols, &row); err != nil {
		return nil, s.remote(ctx, "create protocol", err)
	}
	s.refresh(ctx)
	s.record(ctx, LogProtocolCreate, map[string]any{
		"protocol_number": row.ProtocolNumber,
		"violator":        row.violator(),
	}, string(EntityProtocol), row.ProtocolNumber)
	return &row, nil
}

// Update replaces the editable fields of a protocol.
func (s *ProtocolStore) Update(ctx context.Context, id int64, in ProtocolRecord) (*ProtocolRecord, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, EntityProtocol, ActionEdit, current); err != nil {
		return nil, err
	}
	next := normalizeProtocol(in)
	if next.Status == "" {
		next.Status = current.Status
	}
	if err := validateProtocol(next); err != nil {
		return nil, err
	}

	next.ID = current.ID
	next.ProtocolNumber = current.ProtocolNumber
	next.CreatedByID = current.CreatedByID
	next.CreatedByName = current.CreatedByName
	next.CreatedAt = current.CreatedAt
	next.UpdatedByID = actor.AuthUserID
	next.UpdatedByName = actor.Nickname
	next.UpdatedAt = s.clock.Now().UTC()

	patch, err := protocolPatch(next)
	if err != nil {
		return nil, err
	}
	if err := s.table.Update(ctx, TableProtocols, patch, Eq("id", id)); err != nil {
		return nil, s.remote(ctx, "update protocol", err)
	}
	s.refresh(ctx)
	s.record(ctx, LogProtocolUpdate, map[string]any{
		"protocol_number": next.ProtocolNumber,
		"violator":        next.violator(),
	}, string(EntityProtocol), next.ProtocolNumber)
	return &next, nil
}

// Delete removes a protocol.
func (s *ProtocolStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := Authorize(actor, EntityProtocol, ActionDelete, nil); err != nil {
		return err
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	// Log before the delete
	s.record(ctx, LogProtocolDelete, map[string]any{
		"protocol_number": current.ProtocolNumber,
		"violator":        current.violator(),
	}, string(EntityProtocol), current.ProtocolNumber)
	if err := s.table.Delete(ctx, TableProtocols, Eq("id", id)); err != nil {
		return s.remote(ctx, "delete protocol", err)
	}
	s.refresh(ctx)
	return nil
}

// Export renders a protocol as a JSON document.
func (s *ProtocolStore) Export(ctx context.Context, id int64) ([]byte, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := Authorize(actor, EntityProtocol, ActionExport, nil); err != nil {
		return nil, err
	}
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := json.MarshalIndent(ProtocolExport{
		ExportedAt: s.clock.Now().UTC(),
		ExportedBy: actor.Nickname,
		Protocol:   p,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode protocol: %w", err)
	}
	s.record(ctx, LogProtocolExport, map[string]any{"protocol_number": p.ProtocolNumber}, string(EntityProtocol), p.ProtocolNumber)
	return doc, nil
}

// FindByLicense returns the protocols issued against a driver licence.
// Guests may use it. The number must be exactly six digits once non-digits are dropped.
func (s *ProtocolStore) FindByLicense(ctx context.Context, number string) ([]ProtocolRecord, error) {
	ctx, cancel, _, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	digits := onlyDigits(number)
	if len(digits) != licenseDigits {
		return nil, invalid("license", "номер ВУ должен содержать 6 цифр")
	}
	var rows []ProtocolRecord
	q := Query{
		Filters:    []Filter{Eq("violator_driver_license_number", digits)},
		OrderBy:    "created_at",
		Descending: true,
	}
	if err := s.table.Select(ctx, TableProtocols, q, &rows); err != nil {
		return nil, s.remote(ctx, "find protocols by licence", err)
	}
	return rows, nil
}

func (p ProtocolRecord) violator() string {
	return strings.TrimSpace(p.ViolatorLastname + " " + p.ViolatorFirstname)
}

// normalizeProtocol trims text fields and derives the digits-only licence number.
func normalizeProtocol(p ProtocolRecord) ProtocolRecord {
	for _, f := range []*string{
		&p.ProtocolPlace, &p.OfficialName, &p.ViolatorLastname, &p.ViolatorFirstname,
		&p.ViolatorPatronymic, &p.ViolatorBirthPlace, &p.ViolatorDriverLicense,
		&p.VehicleMakeModel, &p.VehicleLicensePlate, &p.VehicleOwner, &p.VehicleRegisteredInfo,
		&p.OffensePlace, &p.OffenseDescription, &p.OffenseViolationPoint, &p.OffenseSpecialEquip,
		&p.OffenseArticleNumber, &p.OffenseArticlePart, &p.ExplanatoryNote,
	} {
		*f = strings.TrimSpace(*f)
	}
	p.ViolatorLicenseNumber = onlyDigits(p.ViolatorDriverLicense)
	return p
}

func validateProtocol(p ProtocolRecord) error {
	if err := validateStruct(p); err != nil {
		return err
	}
	if !p.Status.Valid() {
		return invalid("status", "допустимые значения: active archived")
	}
	return nil
}

// protocolPatch turns a record into an update body without the immutable columns.
func protocolPatch(p ProtocolRecord) (map[string]any, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	patch := map[string]any{}
	if err := json.Unmarshal(payload, &patch); err != nil {
		return nil, err
	}
	for _, column := range []string{"id", "protocol_number", "created_by_id", "created_by_name", "created_at"} {
		delete(patch, column)
	}
	return patch, nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
