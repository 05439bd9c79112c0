package ugibdd

import "context"

// Table names served by the backend.
const (
	TableEmployees  = "employees"
	TableKusps      = "kusps"
	TableProtocols  = "protocols"
	TableTsuOrders  = "tsu_orders"
	TableActionLogs = "action_logs"
)

// Op is a filter comparison.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	OpIs  Op = "is"
)

// Filter restricts a table call to rows whose column compares true against Value.
// OpIn takes a slice, OpIs takes nil.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In builds a membership filter.
func In[T any](column string, values []T) Filter {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vals}
}

// Query describes a select call.
type Query struct {
	Columns    []string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Table is the generic collection API of the backend. Every implementation
// returns backend failures as *RemoteError.
type Table interface {
	// Select decodes the matching rows into dest, a pointer to a slice.
	Select(ctx context.Context, table string, q Query, dest any) error
	// Insert stores row and overwrites it with the stored representation.
	Insert(ctx context.Context, table string, row any) error
	// Update applies patch to every row matching filters. At least one filter is required.
	Update(ctx context.Context, table string, patch map[string]any, filters ...Filter) error
	// Delete removes every row matching filters. At least one filter is required.
	Delete(ctx context.Context, table string, filters ...Filter) error
	// Count returns the number of rows matching filters.
	Count(ctx context.Context, table string, filters ...Filter) (int64, error)
}
