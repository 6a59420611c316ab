package elegant

import (
	"context"
)

// Relation is a declared association, resolved lazily by one query.
type Relation interface {
	// Resolve runs the scoped query. HasOne yields *Model (possibly nil),
	// HasMany yields *Collection.
	Resolve(ctx context.Context) (any, error)

	// Query returns the related builder, not yet scoped to the parent.
	Query() *Builder
}

type hasOneOrMany struct {
	query      *Builder
	parent     *Model
	foreignKey string
	localKey   string
}

// Query implements Relation.
func (r *hasOneOrMany) Query() *Builder {
	return r.query
}

// ForeignKey returns the attribute name on the related model.
func (r *hasOneOrMany) ForeignKey() string {
	return r.foreignKey
}

// LocalKey returns the attribute name on the parent model.
func (r *hasOneOrMany) LocalKey() string {
	return r.localKey
}

func (r *hasOneOrMany) scoped() *Builder {
	value, _ := r.parent.Attribute(r.localKey)
	return r.query.Clone().Where(r.foreignKey, value)
}

// HasOne resolves to the first related model, or nil.
type HasOne struct {
	hasOneOrMany
}

// Resolve implements Relation.
func (r *HasOne) Resolve(ctx context.Context) (any, error) {
	model, err := r.scoped().First(ctx)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, nil
	}
	return model, nil
}

// Model resolves the relation with a typed result.
func (r *HasOne) Model(ctx context.Context) (*Model, error) {
	return r.scoped().First(ctx)
}

// HasMany resolves to every related model.
type HasMany struct {
	hasOneOrMany
}

// Resolve implements Relation.
func (r *HasMany) Resolve(ctx context.Context) (any, error) {
	return r.Collection(ctx)
}

// Collection resolves the relation with a typed result.
func (r *HasMany) Collection(ctx context.Context) (*Collection, error) {
	return r.scoped().Get(ctx)
}
