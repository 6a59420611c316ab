package elegant

import (
	"context"
	"errors"

	"github.com/alem-hub/schoolportal/internal/database/query"
	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

// passthru lists the forwarded methods whose raw result is returned instead
// of the builder.
var passthru = map[string]bool{
	"insert":         true,
	"getBindings":    true,
	"getRawBindings": true,
}

// Builder wraps a query builder and hydrates its results into models.
type Builder struct {
	manager    *Manager
	schema     *Schema
	query      *query.Builder
	connection string
}

func newBuilder(manager *Manager, schema *Schema, q *query.Builder, connection string) *Builder {
	return &Builder{
		manager:    manager,
		schema:     schema,
		query:      q,
		connection: connection,
	}
}

// Query returns the wrapped query builder.
func (b *Builder) Query() *query.Builder {
	return b.query
}

// Schema returns the schema of the model being queried.
func (b *Builder) Schema() *Schema {
	return b.schema
}

// Where adds a column = value constraint.
func (b *Builder) Where(column string, value any) *Builder {
	b.query.Where(column, value)
	return b
}

// DynamicWhere adds the constraints of a "whereAAndB" finder.
func (b *Builder) DynamicWhere(method string, args ...any) (*Builder, error) {
	if _, err := b.query.DynamicWhere(method, args...); err != nil {
		return b, err
	}
	return b, nil
}

// Get executes the query and hydrates every record.
func (b *Builder) Get(ctx context.Context) (*Collection, error) {
	rows, err := b.query.Get(ctx)
	if err != nil {
		return nil, err
	}
	return b.manager.hydrate(b.schema, rows, b.connection)
}

// First returns the leading model of the result set, nil when empty.
func (b *Builder) First(ctx context.Context) (*Model, error) {
	models, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return models.First(), nil
}

// FirstOrFail is First, failing with a ModelNotFoundError on an empty result.
func (b *Builder) FirstOrFail(ctx context.Context) (*Model, error) {
	model, err := b.First(ctx)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, &shared.ModelNotFoundError{Model: b.schema.Name}
	}
	return model, nil
}

// Find executes the query and returns the model whose primary key equals id,
// or nil.
func (b *Builder) Find(ctx context.Context, id any) (*Model, error) {
	models, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return models.Find(id), nil
}

// FindMany executes the query and returns the models whose primary key is one
// of ids. No request is made for an empty id list.
func (b *Builder) FindMany(ctx context.Context, ids []any) (*Collection, error) {
	if len(ids) == 0 {
		return NewCollection(), nil
	}
	models, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return models.Filter(func(m *Model) bool {
		return containsKey(ids, m.GetKey())
	}), nil
}

// FindOrFail is Find, failing with a ModelNotFoundError when nothing matches.
func (b *Builder) FindOrFail(ctx context.Context, id any) (*Model, error) {
	model, err := b.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, &shared.ModelNotFoundError{Model: b.schema.Name, IDs: []any{id}}
	}
	return model, nil
}

// FindManyOrFail is FindMany, failing when not every distinct id was found.
func (b *Builder) FindManyOrFail(ctx context.Context, ids []any) (*Collection, error) {
	models, err := b.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	distinct := uniqueKeys(ids)
	if models.Len() < len(distinct) {
		var missing []any
		for _, id := range distinct {
			if !models.Contains(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return nil, &shared.ModelNotFoundError{Model: b.schema.Name, IDs: missing}
		}
	}
	return models, nil
}

// Insert sends records to the model's endpoint.
func (b *Builder) Insert(ctx context.Context, records ...map[string]any) (bool, error) {
	return b.query.Insert(ctx, records...)
}

// Update sends values to the model's endpoint, constrained by the wheres.
func (b *Builder) Update(ctx context.Context, values map[string]any) (bool, error) {
	return b.query.Update(ctx, values)
}

// GetBindings returns the flattened bindings of the wrapped query.
func (b *Builder) GetBindings() []any {
	return b.query.GetBindings()
}

// Clone returns a builder over a deep copy of the wrapped query.
func (b *Builder) Clone() *Builder {
	return newBuilder(b.manager, b.schema, b.query.Clone(), b.connection)
}

// Call dispatches a method by name. Model-aware methods run locally; the rest
// are forwarded to the query builder, and the builder itself is returned
// unless the method is expected to produce raw data.
func (b *Builder) Call(ctx context.Context, method string, args ...any) (any, error) {
	switch method {
	case "find", "findOrFail":
		if len(args) == 0 {
			return nil, shared.InvalidArgument("elegant", "Call", "%s expects an id", method)
		}
		if ids, ok := idList(args[0]); ok {
			if method == "find" {
				return b.FindMany(ctx, ids)
			}
			return b.FindManyOrFail(ctx, ids)
		}
		if method == "find" {
			return b.Find(ctx, args[0])
		}
		return b.FindOrFail(ctx, args[0])
	case "findMany", "findManyOrFail":
		if len(args) == 0 {
			return nil, shared.InvalidArgument("elegant", "Call", "%s expects a list of ids", method)
		}
		ids, ok := idList(args[0])
		if !ok {
			ids = []any{args[0]}
		}
		if method == "findMany" {
			return b.FindMany(ctx, ids)
		}
		return b.FindManyOrFail(ctx, ids)
	case "first":
		return b.First(ctx)
	case "firstOrFail":
		return b.FirstOrFail(ctx)
	case "get":
		return b.Get(ctx)
	case "update":
		if len(args) != 1 {
			return nil, shared.InvalidArgument("elegant", "Call", "update expects one map of values")
		}
		values, ok := args[0].(map[string]any)
		if !ok {
			return nil, shared.InvalidArgument("elegant", "Call", "update expects map[string]any, got %T", args[0])
		}
		return b.Update(ctx, values)
	case "clone":
		return b.Clone(), nil
	}

	result, err := b.query.Call(ctx, method, args...)
	if err != nil {
		var undefined *shared.UndefinedMethodError
		if errors.As(err, &undefined) {
			return nil, &shared.UndefinedMethodError{Type: "elegant.Builder<" + b.schema.Name + ">", Method: method}
		}
		return nil, err
	}
	if passthru[method] {
		return result, nil
	}
	return b, nil
}

func idList(arg any) ([]any, bool) {
	switch v := arg.(type) {
	case []any:
		return v, true
	case []int:
		out := make([]any, len(v))
		for i, id := range v {
			out[i] = id
		}
		return out, true
	case []int64:
		out := make([]any, len(v))
		for i, id := range v {
			out[i] = id
		}
		return out, true
	case []string:
		out := make([]any, len(v))
		for i, id := range v {
			out[i] = id
		}
		return out, true
	}
	return nil, false
}
