// Package query accumulates an endpoint, its where constraints and their
// bindings, and executes them through a database connection.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/alem-hub/schoolportal/internal/database"
	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

// Binding groups. Only groups listed in bindingGroups can be addressed.
const (
	BindingWhere = "where"
)

var bindingGroups = []string{BindingWhere}

// WhereBasic is the type tag of a plain column = value constraint.
const WhereBasic = "Basic"

// Where is a single constraint.
type Where struct {
	Type   string `json:"type"`
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// ConnectionInterface is what the builder needs from a connection.
type ConnectionInterface interface {
	Select(ctx context.Context, endpoint string, params []database.Param) (any, error)
	Insert(ctx context.Context, endpoint string, params []database.Param) (bool, error)
	Update(ctx context.Context, endpoint string, params []database.Param) (bool, error)
	PostProcessor() database.Processor
}

// Builder is a mutable query over one endpoint. Not safe for concurrent use.
type Builder struct {
	connection ConnectionInterface
	processor  database.Processor

	from     string
	wheres   []Where
	bindings map[string][]any
}

// New creates a builder on the connection, using the connection's post processor.
func New(conn ConnectionInterface) *Builder {
	var processor database.Processor = database.DefaultProcessor{}
	if conn != nil && conn.PostProcessor() != nil {
		processor = conn.PostProcessor()
	}

	b := &Builder{
		connection: conn,
		processor:  processor,
		bindings:   make(map[string][]any, len(bindingGroups)),
	}
	for _, group := range bindingGroups {
		b.bindings[group] = []any{}
	}
	return b
}

// From sets the target endpoint.
func (b *Builder) From(endpoint string) *Builder {
	b.from = endpoint
	return b
}

// Where appends a column = value constraint and records its binding.
func (b *Builder) Where(column string, value any) *Builder {
	b.wheres = append(b.wheres, Where{Type: WhereBasic, Column: column, Value: value})
	b.bindings[BindingWhere] = append(b.bindings[BindingWhere], value)
	return b
}

// Get executes the query and returns the processed raw records.
func (b *Builder) Get(ctx context.Context) ([]any, error) {
	params, err := b.Params()
	if err != nil {
		return nil, err
	}
	raw, err := b.connection.Select(ctx, b.from, params)
	if err != nil {
		return nil, err
	}
	return b.processor.ProcessSelect(b.from, normalize(raw)), nil
}

// normalize turns a decoded response into a list of records.
func normalize(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return []any{}
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	default:
		return []any{v}
	}
}

// Insert sends one or more records to the endpoint. Each record's columns are
// sorted so every record binds in the same order. Inserting nothing succeeds
// without touching the connection.
func (b *Builder) Insert(ctx context.Context, records ...map[string]any) (bool, error) {
	if len(records) == 0 || (len(records) == 1 && len(records[0]) == 0) {
		return true, nil
	}

	params := make([]database.Param, 0, len(records)*len(records[0]))
	for _, record := range records {
		params = append(params, sortedParams(record)...)
	}
	return b.connection.Insert(ctx, b.from, params)
}

// Update sends the values, followed by the where constraints, to the endpoint.
func (b *Builder) Update(ctx context.Context, values map[string]any) (bool, error) {
	wheres, err := b.Params()
	if err != nil {
		return false, err
	}
	return b.connection.Update(ctx, b.from, append(sortedParams(values), wheres...))
}

func sortedParams(record map[string]any) []database.Param {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]database.Param, 0, len(keys))
	for _, k := range keys {
		params = append(params, database.Param{Key: k, Value: record[k]})
	}
	return params
}

// Params returns the request parameters Get and Update send: the "where"
// bindings in order, each keyed by the column of the where constraint at the
// same position. A binding given as a database.Param carries its own column.
// A plain binding past the last constraint has no column and is an error.
func (b *Builder) Params() ([]database.Param, error) {
	values := b.bindings[BindingWhere]
	params := make([]database.Param, 0, len(values))
	for i, v := range values {
		if p, ok := v.(database.Param); ok {
			params = append(params, p)
			continue
		}
		if i >= len(b.wheres) {
			return nil, shared.InvalidArgument("query", "Params",
				"where binding %d (%v) has no column; bind a database.Param instead", i, v)
		}
		params = append(params, database.Param{Key: b.wheres[i].Column, Value: v})
	}
	return params, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BINDINGS
// ══════════════════════════════════════════════════════════════════════════════

// GetBindings returns every binding value flattened in group order, then
// insertion order. Param bindings contribute their value.
func (b *Builder) GetBindings() []any {
	out := make([]any, 0)
	for _, group := range bindingGroups {
		for _, v := range b.bindings[group] {
			if p, ok := v.(database.Param); ok {
				v = p.Value
			}
			out = append(out, v)
		}
	}
	return out
}

// GetRawBindings returns a copy of the binding groups.
func (b *Builder) GetRawBindings() map[string][]any {
	out := make(map[string][]any, len(b.bindings))
	for group, values := range b.bindings {
		out[group] = append([]any(nil), values...)
	}
	return out
}

// SetBindings replaces the bindings of a group. For the "where" group this
// changes the values Get sends.
func (b *Builder) SetBindings(values []any, group string) error {
	if !validGroup(group) {
		return invalidGroup("SetBindings", group)
	}
	b.bindings[group] = append([]any{}, values...)
	return nil
}

// AddBinding appends a value, or each element of a slice, to a group.
func (b *Builder) AddBinding(value any, group string) error {
	if !validGroup(group) {
		return invalidGroup("AddBinding", group)
	}
	if values, ok := value.([]any); ok {
		b.bindings[group] = append(b.bindings[group], values...)
		return nil
	}
	b.bindings[group] = append(b.bindings[group], value)
	return nil
}

func validGroup(group string) bool {
	for _, g := range bindingGroups {
		if g == group {
			return true
		}
	}
	return false
}

func invalidGroup(op, group string) error {
	return shared.InvalidArgument("query", op, "invalid binding type: %s", group)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESSORS
// ══════════════════════════════════════════════════════════════════════════════

// Endpoint returns the target endpoint.
func (b *Builder) Endpoint() string {
	return b.from
}

// Wheres returns a copy of the constraints with their values as declared.
// Bindings replaced later through SetBindings show up in Params only.
func (b *Builder) Wheres() []Where {
	return append([]Where(nil), b.wheres...)
}

// Connection returns the connection the builder executes on.
func (b *Builder) Connection() ConnectionInterface {
	return b.connection
}

// Processor returns the select result processor.
func (b *Builder) Processor() database.Processor {
	return b.processor
}

// Clone returns a deep copy; constraints added to the clone do not leak back.
func (b *Builder) Clone() *Builder {
	clone := &Builder{
		connection: b.connection,
		processor:  b.processor,
		from:       b.from,
		wheres:     append([]Where(nil), b.wheres...),
		bindings:   b.GetRawBindings(),
	}
	return clone
}

// String renders the query for debugging.
func (b *Builder) String() string {
	params, err := b.Params()
	if err != nil {
		return fmt.Sprintf("%s <%v>", b.from, err)
	}
	return fmt.Sprintf("%s %v", b.from, database.ParamsToMap(params))
}
