package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/bohemiyan/ugibdd"
	"github.com/bohemiyan/ugibdd/internal/config"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgresDB wraps the gorm connection
type PostgresDB struct {
	GormDB *gorm.DB
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	gormDB, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &PostgresDB{GormDB: gormDB}, nil
}

func (p *PostgresDB) Close() error {
	sqlDB, err := p.GormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close GORM sql.DB: %w", err)
	}
	return nil
}

// models maps each table to the struct gorm uses for it.
var models = map[string]func() any{
	ugibdd.TableEmployees:  func() any { return &ugibdd.Employee{} },
	ugibdd.TableKusps:      func() any { return &ugibdd.KuspRecord{} },
	ugibdd.TableProtocols:  func() any { return &ugibdd.ProtocolRecord{} },
	ugibdd.TableTsuOrders:  func() any { return &ugibdd.TsuOrder{} },
	ugibdd.TableActionLogs: func() any { return &ugibdd.ActionLog{} },
}

// Migrate creates or updates every table.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	all := make([]any, 0, len(models))
	for _, m := range models {
		all = append(all, m())
	}
	if err := p.GormDB.WithContext(ctx).AutoMigrate(all...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// GormTable serves ugibdd.Table straight from PostgreSQL.
type GormTable struct {
	db *gorm.DB
}

func NewGormTable(db *gorm.DB) *GormTable {
	return &GormTable{db: db}
}

func (t *GormTable) model(ctx context.Context, table string) (*gorm.DB, error) {
	m, ok := models[table]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", ugibdd.ErrInvalidInput, table)
	}
	return t.db.WithContext(ctx).Model(m()), nil
}

func (t *GormTable) Select(ctx context.Context, table string, q ugibdd.Query, dest any) error {
	tx, err := t.model(ctx, table)
	if err != nil {
		return err
	}
	if len(q.Columns) > 0 {
		tx = tx.Select(q.Columns)
	}
	tx, err = where(tx, q.Filters)
	if err != nil {
		return err
	}
	if q.OrderBy != "" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.OrderBy}, Desc: q.Descending})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return mapError(tx.Find(dest).Error)
}

func (t *GormTable) Insert(ctx context.Context, table string, row any) error {
	if _, ok := models[table]; !ok {
		return fmt.Errorf("%w: unknown table %q", ugibdd.ErrInvalidInput, table)
	}
	return mapError(t.db.WithContext(ctx).Table(table).Create(row).Error)
}

func (t *GormTable) Update(ctx context.Context, table string, patch map[string]any, filters ...ugibdd.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: update without filters", ugibdd.ErrInvalidInput)
	}
	tx, err := t.model(ctx, table)
	if err != nil {
		return err
	}
	tx, err = where(tx, filters)
	if err != nil {
		return err
	}
	values := make(map[string]any, len(patch))
	for k, v := range patch {
		if values[k], err = columnValue(v); err != nil {
			return err
		}
	}
	return mapError(tx.Updates(values).Error)
}

func (t *GormTable) Delete(ctx context.Context, table string, filters ...ugibdd.Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: delete without filters", ugibdd.ErrInvalidInput)
	}
	m, ok := models[table]
	if !ok {
		return fmt.Errorf("%w: unknown table %q", ugibdd.ErrInvalidInput, table)
	}
	tx, err := where(t.db.WithContext(ctx), filters)
	if err != nil {
		return err
	}
	return mapError(tx.Delete(m()).Error)
}

func (t *GormTable) Count(ctx context.Context, table string, filters ...ugibdd.Filter) (int64, error) {
	tx, err := t.model(ctx, table)
	if err != nil {
		return 0, err
	}
	tx, err = where(tx, filters)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func where(tx *gorm.DB, filters []ugibdd.Filter) (*gorm.DB, error) {
	for _, f := range filters {
		expr, err := condition(f)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(expr)
	}
	return tx, nil
}

func condition(f ugibdd.Filter) (clause.Expression, error) {
	col := clause.Column{Name: f.Column}
	switch f.Op {
	case ugibdd.OpEq:
		return clause.Eq{Column: col, Value: f.Value}, nil
	case ugibdd.OpNeq:
		return clause.Neq{Column: col, Value: f.Value}, nil
	case ugibdd.OpGt:
		return clause.Gt{Column: col, Value: f.Value}, nil
	case ugibdd.OpGte:
		return clause.Gte{Column: col, Value: f.Value}, nil
	case ugibdd.OpLt:
		return clause.Lt{Column: col, Value: f.Value}, nil
	case ugibdd.OpLte:
		return clause.Lte{Column: col, Value: f.Value}, nil
	case ugibdd.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a list", ugibdd.ErrInvalidInput, f.Column)
		}
		return clause.IN{Column: col, Values: values}, nil
	case ugibdd.OpIs:
		return clause.Eq{Column: col, Value: nil}, nil
	}
	return nil, fmt.Errorf("%w: unsupported operator %q", ugibdd.ErrInvalidInput, f.Op)
}

// columnValue encodes composite patch values as JSON for jsonb columns.
func columnValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(time.Time); ok {
		return v, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Struct:
		if _, ok := rv.Interface().(time.Time); ok {
			return rv.Interface(), nil
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode column value: %w", err)
		}
		return string(payload), nil
	}
	return rv.Interface(), nil
}

// mapError turns database failures into *ugibdd.RemoteError so callers see
// one error shape whichever driver serves the table.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ugibdd.RemoteError{Status: http.StatusNotFound, Message: "record not found"}
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &ugibdd.RemoteError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	re := &ugibdd.RemoteError{
		Status:  http.StatusInternalServerError,
		Code:    pgErr.Code,
		Message: pgErr.Message,
		Details: pgErr.Detail,
		Hint:    pgErr.Hint,
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.ForeignKeyViolation:
		re.Status = http.StatusConflict
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.InvalidTextRepresentation:
		re.Status = http.StatusBadRequest
	case pgerrcode.InsufficientPrivilege:
		re.Status = http.StatusForbidden
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn:
		re.Status = http.StatusNotFound
	}
	return re
}
