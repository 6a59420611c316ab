package elegant

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/spf13/cast"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
	"github.com/alem-hub/schoolportal/pkg/timeutil"
)

// Model is a single record. Attribute names and relation names never overlap:
// GetAttribute checks attributes first and falls back to declared relations.
// Not safe for concurrent use.
type Model struct {
	manager    *Manager
	schema     *Schema
	connection string

	attributes map[string]any
	original   map[string]any
	relations  map[string]any

	hidden  []string
	visible []string

	exists             bool
	wasRecentlyCreated bool
}

func newModel(manager *Manager, schema *Schema, connection string) *Model {
	return &Model{
		manager:    manager,
		schema:     schema,
		connection: connection,
		attributes: make(map[string]any),
		original:   make(map[string]any),
		relations:  make(map[string]any),
		hidden:     append([]string(nil), schema.Hidden...),
		visible:    append([]string(nil), schema.Visible...),
	}
}

// Schema returns the model's schema.
func (m *Model) Schema() *Schema {
	return m.schema
}

// Connection returns the connection name the model was loaded from.
func (m *Model) Connection() string {
	return m.connection
}

// Query returns a fresh builder for the model type on the model's connection.
func (m *Model) Query() (*Builder, error) {
	return m.manager.newBuilder(m.schema, m.connection)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTES
// ══════════════════════════════════════════════════════════════════════════════

// GetAttribute returns a casted attribute or, when no attribute has the key,
// the memoized result of the declared relation. Unknown keys return nil.
func (m *Model) GetAttribute(ctx context.Context, key string) (any, error) {
	if value, ok := m.attributes[key]; ok {
		return m.castAttribute(key, value)
	}
	if m.schema.HasRelation(key) {
		return m.getRelationValue(ctx, key)
	}
	return nil, nil
}

// Attribute returns the raw stored value.
func (m *Model) Attribute(key string) (any, bool) {
	v, ok := m.attributes[key]
	return v, ok
}

// String returns the attribute as a string; missing or uncastable values give "".
func (m *Model) String(key string) string {
	return cast.ToString(m.attributes[key])
}

// Int returns the attribute as an int64; missing or uncastable values give 0.
func (m *Model) Int(key string) int64 {
	return cast.ToInt64(m.attributes[key])
}

// Bool returns the attribute as a bool.
func (m *Model) Bool(key string) bool {
	return cast.ToBool(m.attributes[key])
}

// Time returns a date attribute. The zero time is returned for missing or
// unparseable values.
func (m *Model) Time(key string) time.Time {
	v, ok := m.attributes[key]
	if !ok || v == nil {
		return time.Time{}
	}
	t, err := timeutil.Parse(v, m.manager.config.Location)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (m *Model) castAttribute(key string, value any) (any, error) {
	field, ok := m.schema.Field(key)
	if !ok || value == nil {
		return value, nil
	}

	var (
		out any
		err error
	)
	switch field.Type {
	case TypeString:
		out, err = cast.ToStringE(value)
	case TypeInt:
		out, err = cast.ToInt64E(value)
	case TypeFloat:
		out, err = cast.ToFloat64E(value)
	case TypeBool:
		out, err = cast.ToBoolE(value)
	case TypeDate:
		out, err = timeutil.Parse(value, m.manager.config.Location)
	case TypeJSON:
		out, err = decodeJSON(value)
	default:
		out = value
	}
	if err != nil {
		return nil, shared.WrapError("elegant", "GetAttribute", shared.ErrInvalidArgument,
			fmt.Sprintf("model [%s] attribute %s is not a valid %s", m.schema.Name, key, field.Type), err)
	}
	return out, nil
}

func decodeJSON(value any) (any, error) {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return value, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetAttribute stores a value. Date fields are converted to the storage
// format on write.
func (m *Model) SetAttribute(key string, value any) error {
	if m.schema.IsDate(key) && value != nil {
		t, err := timeutil.Parse(value, m.manager.config.Location)
		if err != nil {
			return shared.WrapError("elegant", "SetAttribute", shared.ErrInvalidArgument,
				fmt.Sprintf("model [%s] attribute %s is not a date", m.schema.Name, key), err)
		}
		value = timeutil.Format(t, m.manager.config.StorageFormat, m.manager.config.Location)
	}
	m.attributes[key] = value
	return nil
}

// Fill sets every attribute through SetAttribute, in key order.
func (m *Model) Fill(attributes map[string]any) error {
	for _, key := range sortedKeys(attributes) {
		if err := m.SetAttribute(key, attributes[key]); err != nil {
			return err
		}
	}
	return nil
}

// Attributes returns a copy of the raw attributes.
func (m *Model) Attributes() map[string]any {
	return copyMap(m.attributes)
}

func (m *Model) setRawAttributes(attributes map[string]any, sync bool) {
	m.attributes = copyMap(attributes)
	if sync {
		m.SyncOriginal()
	}
}

// GetKey returns the primary key value.
func (m *Model) GetKey() any {
	return m.attributes[m.GetKeyName()]
}

// GetKeyName returns the primary key attribute name.
func (m *Model) GetKeyName() string {
	return m.schema.PrimaryKey
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRTY TRACKING
// ══════════════════════════════════════════════════════════════════════════════

// GetOriginal returns the attribute value as of the last sync.
func (m *Model) GetOriginal(key string) any {
	return m.original[key]
}

// SyncOriginal makes the current attributes the clean baseline.
func (m *Model) SyncOriginal() {
	m.original = copyMap(m.attributes)
}

// GetDirty returns the attributes changed since the last sync.
func (m *Model) GetDirty() map[string]any {
	dirty := make(map[string]any)
	for key, value := range m.attributes {
		original, ok := m.original[key]
		if !ok || !equivalent(original, value) {
			dirty[key] = value
		}
	}
	return dirty
}

// IsDirty reports whether any of the keys, or any attribute when no keys are
// given, changed since the last sync.
func (m *Model) IsDirty(keys ...string) bool {
	dirty := m.GetDirty()
	if len(keys) == 0 {
		return len(dirty) > 0
	}
	for _, key := range keys {
		if _, ok := dirty[key]; ok {
			return true
		}
	}
	return false
}

func equivalent(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	as, aErr := cast.ToStringE(a)
	bs, bErr := cast.ToStringE(b)
	return aErr == nil && bErr == nil && as == bs
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ══════════════════════════════════════════════════════════════════════════════

// Save inserts a new model, or updates the dirty attributes of an existing
// one. A clean existing model is left alone.
func (m *Model) Save(ctx context.Context) (bool, error) {
	b, err := m.Query()
	if err != nil {
		return false, err
	}

	if !m.exists {
		ok, err := b.query.Insert(ctx, m.Attributes())
		if err != nil {
			return false, fmt.Errorf("insert %s: %w", m.schema.Name, err)
		}
		if ok {
			m.exists = true
			m.wasRecentlyCreated = true
			m.SyncOriginal()
		}
		return ok, nil
	}

	dirty := m.GetDirty()
	if len(dirty) == 0 {
		return true, nil
	}

	ok, err := b.query.Where(m.GetKeyName(), m.GetKey()).Update(ctx, dirty)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", m.schema.Name, err)
	}
	if ok {
		m.SyncOriginal()
	}
	return ok, nil
}

// Exists reports whether the model was loaded or saved.
func (m *Model) Exists() bool {
	return m.exists
}

// WasRecentlyCreated reports whether the model was inserted by Save.
func (m *Model) WasRecentlyCreated() bool {
	return m.wasRecentlyCreated
}

// Replicate returns a new, non-existing copy without the primary key and the
// excluded attributes.
func (m *Model) Replicate(except ...string) *Model {
	clone := newModel(m.manager, m.schema, m.connection)
	skip := map[string]bool{m.GetKeyName(): true}
	for _, key := range except {
		skip[key] = true
	}
	for key, value := range m.attributes {
		if !skip[key] {
			clone.attributes[key] = value
		}
	}
	return clone
}

// ══════════════════════════════════════════════════════════════════════════════
// RELATIONS
// ══════════════════════════════════════════════════════════════════════════════

func (m *Model) getRelationValue(ctx context.Context, key string) (any, error) {
	if value, ok := m.relations[key]; ok {
		return value, nil
	}

	relation, err := m.schema.Relations[key](m)
	if err != nil {
		return nil, err
	}
	if isNilRelation(relation) {
		return nil, shared.NewDomainError("elegant", "GetAttribute", shared.ErrLogic,
			fmt.Sprintf("%s::%s must return a relationship instance", m.schema.Name, key))
	}

	value, err := relation.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	m.relations[key] = value
	return value, nil
}

func isNilRelation(r Relation) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// Relation builds the declared relation without resolving it.
func (m *Model) Relation(key string) (Relation, error) {
	fn, ok := m.schema.Relations[key]
	if !ok {
		return nil, shared.InvalidArgument("elegant", "Relation", "model [%s] has no relation %s", m.schema.Name, key)
	}
	return fn(m)
}

// GetRelation returns a loaded relation value.
func (m *Model) GetRelation(key string) (any, bool) {
	v, ok := m.relations[key]
	return v, ok
}

// SetRelation stores a resolved relation value.
func (m *Model) SetRelation(key string, value any) {
	m.relations[key] = value
}

// RelationLoaded reports whether the relation was resolved or set.
func (m *Model) RelationLoaded(key string) bool {
	_, ok := m.relations[key]
	return ok
}

// HasOne declares a relation to a single related model whose foreignKey
// matches this model's localKey. Empty keys default to <Name><PrimaryKey> and
// the primary key.
func (m *Model) HasOne(related, foreignKey, localKey string) (*HasOne, error) {
	q, fk, lk, err := m.relationQuery(related, foreignKey, localKey)
	if err != nil {
		return nil, err
	}
	return &HasOne{hasOneOrMany{query: q, parent: m, foreignKey: fk, localKey: lk}}, nil
}

// HasMany declares a relation to every related model whose foreignKey
// matches this model's localKey.
func (m *Model) HasMany(related, foreignKey, localKey string) (*HasMany, error) {
	q, fk, lk, err := m.relationQuery(related, foreignKey, localKey)
	if err != nil {
		return nil, err
	}
	return &HasMany{hasOneOrMany{query: q, parent: m, foreignKey: fk, localKey: lk}}, nil
}

func (m *Model) relationQuery(related, foreignKey, localKey string) (*Builder, string, string, error) {
	s, err := m.manager.Schema(related)
	if err != nil {
		return nil, "", "", err
	}
	if foreignKey == "" {
		foreignKey = m.schema.Name + m.GetKeyName()
	}
	if localKey == "" {
		localKey = m.GetKeyName()
	}
	b, err := m.manager.newBuilder(s, m.connection)
	if err != nil {
		return nil, "", "", err
	}
	return b, foreignKey, localKey, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SERIALIZATION
// ══════════════════════════════════════════════════════════════════════════════

// MakeVisible removes the keys from the hidden list and, when a visible list
// is in use, adds them to it.
func (m *Model) MakeVisible(keys ...string) *Model {
	m.hidden = without(m.hidden, keys)
	if len(m.visible) > 0 {
		m.visible = append(without(m.visible, keys), keys...)
	}
	return m
}

// MakeHidden adds the keys to the hidden list.
func (m *Model) MakeHidden(keys ...string) *Model {
	m.hidden = append(without(m.hidden, keys), keys...)
	return m
}

// ToMap returns the visible attributes with date fields in display format.
func (m *Model) ToMap() map[string]any {
	out := make(map[string]any, len(m.attributes))
	for key, value := range m.attributes {
		if !m.isVisible(key) {
			continue
		}
		out[key] = m.serializeAttribute(key, value)
	}
	return out
}

// ToJSON returns ToMap encoded as JSON.
func (m *Model) ToJSON() (string, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// MarshalJSON implements json.Marshaler.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

func (m *Model) serializeAttribute(key string, value any) any {
	field, ok := m.schema.Field(key)
	if !ok || field.Type != TypeDate || value == nil {
		return value
	}
	t, err := timeutil.Parse(value, m.manager.config.Location)
	if err != nil {
		return value
	}
	layout := field.Format
	if layout == "" {
		layout = m.manager.config.DisplayFormat
	}
	return timeutil.Format(t, layout, m.manager.config.Location)
}

func (m *Model) isVisible(key string) bool {
	if len(m.visible) > 0 {
		return contains(m.visible, key)
	}
	return !contains(m.hidden, key)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(in map[string]any) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, key string) bool {
	for _, item := range list {
		if item == key {
			return true
		}
	}
	return false
}

func without(list, keys []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if !contains(keys, item) {
			out = append(out, item)
		}
	}
	return out
}
