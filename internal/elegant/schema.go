// Package elegant is an ActiveRecord-style mapper over the portal query layer.
// Model types are described by a Schema registered with a Manager; the
// Manager is the injected context every model and builder is created from.
package elegant

import (
	"fmt"
	"sort"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
	"github.com/alem-hub/schoolportal/pkg/timeutil"
)

// FieldType is the declared type of a model attribute.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeDate   FieldType = "date"
	TypeJSON   FieldType = "json"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeDate, TypeJSON:
		return true
	}
	return false
}

// Field describes one attribute.
type Field struct {
	Type FieldType

	// Format overrides the manager's display format for a date field.
	Format string
}

// RelationFunc builds the relation named by its key in Schema.Relations.
type RelationFunc func(m *Model) (Relation, error)

// Schema describes a model type. Attributes not listed in Fields are kept
// as decoded, without casting.
type Schema struct {
	// Name identifies the model type, e.g. "Student"
	Name string

	// Endpoint is the REST resource path, may contain ":key" tokens
	Endpoint string

	// PrimaryKey defaults to "Id"
	PrimaryKey string

	// Connection selects a named connection, the resolver default when empty
	Connection string

	Fields    map[string]Field
	Hidden    []string
	Visible   []string
	Relations map[string]RelationFunc
}

// DefaultPrimaryKey is the primary key used when a schema does not name one.
const DefaultPrimaryKey = "Id"

func (s *Schema) validate() error {
	const op = "Register"

	if s.Name == "" {
		return shared.InvalidArgument("elegant", op, "schema name is required")
	}
	if s.Endpoint == "" {
		return shared.InvalidArgument("elegant", op, "model [%s] has no endpoint", s.Name)
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = DefaultPrimaryKey
	}

	for name, field := range s.Fields {
		if !field.Type.valid() {
			return shared.InvalidArgument("elegant", op, "model [%s] field %s: unknown type %q", s.Name, name, field.Type)
		}
		if field.Format != "" {
			if field.Type != TypeDate {
				return shared.InvalidArgument("elegant", op, "model [%s] field %s: format set on a %s field", s.Name, name, field.Type)
			}
			if !timeutil.ValidLayout(field.Format) {
				return shared.InvalidArgument("elegant", op, "model [%s] field %s: invalid date format %q", s.Name, name, field.Format)
			}
		}
	}

	for name, fn := range s.Relations {
		if fn == nil {
			return shared.InvalidArgument("elegant", op, "model [%s] relation %s is nil", s.Name, name)
		}
		if _, ok := s.Fields[name]; ok {
			return shared.InvalidArgument("elegant", op, "model [%s] relation %s shadows a field", s.Name, name)
		}
	}
	return nil
}

// Field returns the declared field.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.Fields[name]
	return f, ok
}

// IsDate reports whether the attribute is a date field.
func (s *Schema) IsDate(name string) bool {
	f, ok := s.Fields[name]
	return ok && f.Type == TypeDate
}

// DateFields returns the date field names, sorted.
func (s *Schema) DateFields() []string {
	var out []string
	for name, f := range s.Fields {
		if f.Type == TypeDate {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// HasRelation reports whether a relation with the name is declared.
func (s *Schema) HasRelation(name string) bool {
	_, ok := s.Relations[name]
	return ok
}

func (s *Schema) String() string {
	return fmt.Sprintf("%s(%s)", s.Name, s.Endpoint)
}

func (s *Schema) clone() *Schema {
	c := *s
	c.Fields = make(map[string]Field, len(s.Fields))
	for k, v := range s.Fields {
		c.Fields[k] = v
	}
	c.Relations = make(map[string]RelationFunc, len(s.Relations))
	for k, v := range s.Relations {
		c.Relations[k] = v
	}
	c.Hidden = append([]string(nil), s.Hidden...)
	c.Visible = append([]string(nil), s.Visible...)
	return &c
}
