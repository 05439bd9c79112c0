package ugibdd

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// NewEmployee is the input of EmployeeStore.Create.
type NewEmployee struct {
	Nickname   string   `json:"nickname" validate:"required,min=3"`
	Password   string   `json:"password" validate:"required,min=6"`
	Rank       string   `json:"rank" validate:"required"`
	Department string   `json:"department" validate:"required"`
	Category   Category `json:"category" validate:"required"`
}

// EmployeeUpdate is the input of EmployeeStore.Update. Nil fields are left unchanged.
type EmployeeUpdate struct {
	Nickname   *string   `json:"nickname,omitempty" validate:"omitempty,min=3"`
	Rank       *string   `json:"rank,omitempty" validate:"omitempty,min=1"`
	Department *string   `json:"department,omitempty" validate:"omitempty,min=1"`
	Category   *Category `json:"category,omitempty"`
	Password   *string   `json:"password,omitempty" validate:"omitempty,min=6"`
}

// KUSP columns that reference an employee's auth subject.
var kuspEmployeeRefs = []string{"received_by_id", "assigned_by_id", "assigned_to_id"}

// EmployeeStore caches the employees table and manages accounts.
type EmployeeStore struct {
	deps
	subjects    *subjects
	emailDomain string

	mu    sync.RWMutex
	cache []Employee
}

// Load fetches all employees ordered by nickname and replaces the cache.
func (s *EmployeeStore) Load(ctx context.Context) ([]Employee, error) {
	ctx, cancel, _, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	if err := s.load(ctx); err != nil {
		return nil, s.remote(ctx, "load employees", err)
	}
	return s.List(), nil
}

func (s *EmployeeStore) load(ctx context.Context) error {
	var rows []Employee
	if err := s.table.Select(ctx, TableEmployees, Query{OrderBy: "nickname"}, &rows); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache = rows
	s.mu.Unlock()
	return nil
}

// refresh reloads the cache after a mutation. A failed reload is logged only.
func (s *EmployeeStore) refresh(ctx context.Context) {
	if err := s.load(ctx); err != nil {
		s.log.Warnw("failed to refresh employees", "error", err)
	}
}

func (s *EmployeeStore) reset() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// List returns the cached employees.
func (s *EmployeeStore) List() []Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Employee(nil), s.cache...)
}

// Get returns a cached employee.
func (s *EmployeeStore) Get(id int64) (Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.cache {
		if e.ID == id {
			return e, nil
		}
	}
	return Employee{}, fmt.Errorf("%w: employee %d", ErrNotFound, id)
}

// Filter returns cached employees whose nickname, rank or department contains search.
func (s *EmployeeStore) Filter(search string) []Employee {
	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(search))
	var out []Employee
	for _, e := range s.List() {
		if needle == "" ||
			strings.Contains(fold.String(e.Nickname), needle) ||
			strings.Contains(fold.String(e.Rank), needle) ||
			strings.Contains(fold.String(e.Department), needle) {
			out = append(out, e)
		}
	}
	return out
}

// find looks an employee up in the cache, then in the table.
func (s *EmployeeStore) find(ctx context.Context, id int64) (Employee, error) {
	if e, err := s.Get(id); err == nil {
		return e, nil
	}
	var rows []Employee
	if err := s.table.Select(ctx, TableEmployees, Query{Filters: []Filter{Eq("id", id)}, Limit: 1}, &rows); err != nil {
		return Employee{}, s.remote(ctx, "load employee", err)
	}
	if len(rows) == 0 {
		return Employee{}, fmt.Errorf("%w: employee %d", ErrNotFound, id)
	}
	return rows[0], nil
}

// Create makes the auth subject first and then the employee row. If the row
// cannot be stored the subject is deleted again.
func (s *EmployeeStore) Create(ctx context.Context, in NewEmployee) (*Employee, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	if err := Authorize(actor, EntityEmployee, ActionManage, nil); err != nil {
		return nil, err
	}
	in.Nickname = strings.TrimSpace(in.Nickname)
	in.Rank = strings.TrimSpace(in.Rank)
	in.Department = strings.TrimSpace(in.Department)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := ParseCategory(string(in.Category)); err != nil {
		return nil, err
	}
	if in.Category == CategoryAdmin && actor.Category != CategoryAdmin {
		return nil, fmt.Errorf("%w: only an administrator can grant %s", ErrPermissionDenied, CategoryAdmin)
	}

	saga := NewSaga("create employee")
	subjectID, err := s.subjects.Create(ctx, s.email(in.Nickname), in.Password, map[string]any{
		"nickname":   in.Nickname,
		"rank":       in.Rank,
		"department": in.Department,
		"category":   in.Category,
	})
	if err != nil {
		return nil, s.remote(ctx, "create auth subject", err)
	}
	saga.Add("delete auth subject", func(ctx context.Context) error {
		return s.subjects.Delete(ctx, subjectID)
	})

	row := Employee{
		AuthUserID: subjectID,
		Nickname:   in.Nickname,
		Rank:       in.Rank,
		Department: in.Department,
		Category:   in.Category,
	}
	if err := s.table.Insert(ctx, TableEmployees, &row); err != nil {
		if cerr := saga.Compensate(ctx); cerr != nil {
			s.log.Errorw("employee compensation failed", "subject", subjectID, "error", cerr)
		}
		return nil, s.remote(ctx, "insert employee", err)
	}

	s.refresh(ctx)
	s.record(ctx, LogEmployeeCreate, map[string]any{
		"nickname":   row.Nickname,
		"rank":       row.Rank,
		"department": row.Department,
		"category":   row.Category,
		"created_by": actor.Nickname,
	}, string(EntityEmployee), subjectID)
	return &row, nil
}

// Update edits an employee. Password and login changes go through the admin
// function before the row is written.
func (s *EmployeeStore) Update(ctx context.Context, id int64, in EmployeeUpdate) (*Employee, error) {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	target, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, EntityEmployee, ActionEdit, target); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	next := target
	changes := map[string]any{}
	set := func(field string, from, to string) {
		if from != to {
			changes[field] = map[string]string{"было": from, "стало": to}
		}
	}
	if in.Nickname != nil {
		next.Nickname = strings.TrimSpace(*in.Nickname)
		if len([]rune(next.Nickname)) < 3 {
			return nil, invalid("nickname", "не менее 3 символов")
		}
		set("nickname", target.Nickname, next.Nickname)
	}
	if in.Rank != nil {
		next.Rank = strings.TrimSpace(*in.Rank)
		set("rank", target.Rank, next.Rank)
	}
	if in.Department != nil {
		next.Department = strings.TrimSpace(*in.Department)
		set("department", target.Department, next.Department)
	}
	if in.Category != nil && *in.Category != target.Category {
		if _, err := ParseCategory(string(*in.Category)); err != nil {
			return nil, err
		}
		if !CanManageUsers(actor) {
			return nil, fmt.Errorf("%w: category change", ErrPermissionDenied)
		}
		if *in.Category == CategoryAdmin && actor.Category != CategoryAdmin {
			return nil, fmt.Errorf("%w: only an administrator can grant %s", ErrPermissionDenied, CategoryAdmin)
		}
		next.Category = *in.Category
		set("category", string(target.Category), string(next.Category))
	}

	if target.AuthUserID != "" {
		if in.Password != nil && *in.Password != "" {
			if err := s.subjects.UpdatePassword(ctx, target.AuthUserID, *in.Password); err != nil {
				return nil, s.remote(ctx, "update password", err)
			}
			s.record(ctx, LogEmployeePasswordChange, map[string]any{
				"nickname":   target.Nickname,
				"changed_by": actor.Nickname,
			}, string(EntityEmployee), fmt.Sprint(id))
		}
		if next.Nickname != target.Nickname {
			if err := s.subjects.UpdateEmail(ctx, target.AuthUserID, s.email(next.Nickname)); err != nil {
				return nil, s.remote(ctx, "update login", err)
			}
		}
		if len(changes) > 0 {
			if err := s.subjects.UpdateMetadata(ctx, target.AuthUserID, map[string]any{
				"nickname":   next.Nickname,
				"rank":       next.Rank,
				"department": next.Department,
				"category":   next.Category,
			}); err != nil {
				s.log.Warnw("failed to sync subject metadata", "subject", target.AuthUserID, "error", err)
			}
		}
	}

	if len(changes) > 0 {
		patch := map[string]any{
			"nickname":   next.Nickname,
			"rank":       next.Rank,
			"department": next.Department,
			"category":   next.Category,
		}
		if err := s.table.Update(ctx, TableEmployees, patch, Eq("id", id)); err != nil {
			return nil, s.remote(ctx, "update employee", err)
		}
		s.record(ctx, LogEmployeeUpdate, map[string]any{
			"nickname":   next.Nickname,
			"changes":    changes,
			"updated_by": actor.Nickname,
		}, string(EntityEmployee), fmt.Sprint(id))
	}

	s.refresh(ctx)
	return &next, nil
}

// Delete removes an employee: KUSP references are detached, the auth subject
// is deleted, then the row.
func (s *EmployeeStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel, actor, err := s.employee(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	target, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	// Checked apart from the matrix so the caller sees a distinct error
	if actor.ID == target.ID {
		return ErrSelfDelete
	}
	if err := Authorize(actor, EntityEmployee, ActionDelete, target); err != nil {
		return err
	}

	detached := map[string]any{}
	if target.AuthUserID != "" {
		for _, column := range kuspEmployeeRefs {
			n, err := s.table.Count(ctx, TableKusps, Eq(column, target.AuthUserID))
			if err != nil {
				s.log.Warnw("failed to count KUSP references", "column", column, "error", err)
				continue
			}
			detached[column] = n
			if n == 0 {
				continue
			}
			if err := s.table.Update(ctx, TableKusps, map[string]any{column: nil}, Eq(column, target.AuthUserID)); err != nil {
				s.log.Errorw("failed to detach KUSP references", "column", column, "error", err)
			}
		}
	}

	s.record(ctx, LogEmployeeDelete, map[string]any{
		"nickname":       target.Nickname,
		"rank":           target.Rank,
		"department":     target.Department,
		"category":       target.Category,
		"deleted_by":     actor.Nickname,
		"affected_kusps": detached,
	}, string(EntityEmployee), fmt.Sprint(id))

	if target.AuthUserID != "" {
		if err := s.subjects.Delete(ctx, target.AuthUserID); err != nil {
			if !IsRemoteNotFound(err) {
				return s.remote(ctx, "delete auth subject", err)
			}
			s.log.Infow("auth subject already gone", "subject", target.AuthUserID)
		}
	}

	if err := s.table.Delete(ctx, TableEmployees, Eq("id", id)); err != nil {
		return s.remote(ctx, "delete employee", err)
	}
	s.refresh(ctx)
	return nil
}

func (s *EmployeeStore) email(nickname string) string {
	return nickname + "@" + s.emailDomain
}
