package elegant

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/alem-hub/schoolportal/internal/database"
	"github.com/alem-hub/schoolportal/internal/database/query"
	"github.com/alem-hub/schoolportal/internal/domain/shared"
	"github.com/alem-hub/schoolportal/pkg/logger"
	"github.com/alem-hub/schoolportal/pkg/timeutil"
)

// ManagerConfig contains configuration for a Manager.
type ManagerConfig struct {
	// StorageFormat is the layout date attributes are stored in after a write
	StorageFormat string

	// DisplayFormat is the layout date attributes are serialized with
	DisplayFormat string

	// Location dates without an explicit offset are read in
	Location *time.Location

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		StorageFormat: timeutil.FormatDateTimeSeconds,
		DisplayFormat: timeutil.FormatDate,
		Location:      timeutil.AlmatyTZ,
		Logger:        slog.Default(),
	}
}

// Manager owns the connection resolver and the registered schemas. Every
// model and builder is created through it.
type Manager struct {
	resolver *database.Resolver
	schemas  map[string]*Schema
	config   ManagerConfig
	logger   *slog.Logger
}

// NewManager creates a new Manager.
func NewManager(resolver *database.Resolver, config ManagerConfig) (*Manager, error) {
	defaults := DefaultManagerConfig()
	if config.StorageFormat == "" {
		config.StorageFormat = defaults.StorageFormat
	}
	if config.DisplayFormat == "" {
		config.DisplayFormat = defaults.DisplayFormat
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if resolver == nil {
		return nil, shared.InvalidArgument("elegant", "NewManager", "resolver is required")
	}
	if !timeutil.ValidLayout(config.StorageFormat) {
		return nil, shared.InvalidArgument("elegant", "NewManager", "invalid storage format %q", config.StorageFormat)
	}
	if !timeutil.ValidLayout(config.DisplayFormat) {
		return nil, shared.InvalidArgument("elegant", "NewManager", "invalid display format %q", config.DisplayFormat)
	}

	return &Manager{
		resolver: resolver,
		schemas:  make(map[string]*Schema),
		config:   config,
		logger:   config.Logger,
	}, nil
}

// Register validates and stores a schema. Registering a name twice replaces it.
func (m *Manager) Register(schema Schema) error {
	s := schema.clone()
	if err := s.validate(); err != nil {
		return err
	}
	m.schemas[s.Name] = s
	m.logger.Debug("model registered", logger.Model(s.Name), logger.Endpoint(s.Endpoint))
	return nil
}

// Schema returns a registered schema.
func (m *Manager) Schema(name string) (*Schema, error) {
	s, ok := m.schemas[name]
	if !ok {
		return nil, shared.InvalidArgument("elegant", "Schema", "model [%s] is not registered", name)
	}
	return s, nil
}

// Models returns the registered model names, sorted.
func (m *Manager) Models() []string {
	names := make([]string, 0, len(m.schemas))
	for name := range m.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolver returns the connection resolver.
func (m *Manager) Resolver() *database.Resolver {
	return m.resolver
}

// Config returns the manager configuration.
func (m *Manager) Config() ManagerConfig {
	return m.config
}

// New returns an empty, non-existing model on the schema's connection.
func (m *Manager) New(name string) (*Model, error) {
	s, err := m.Schema(name)
	if err != nil {
		return nil, err
	}
	return newModel(m, s, s.Connection), nil
}

// Make returns a new model filled with the attributes.
func (m *Manager) Make(name string, attributes map[string]any) (*Model, error) {
	model, err := m.New(name)
	if err != nil {
		return nil, err
	}
	if err := model.Fill(attributes); err != nil {
		return nil, err
	}
	return model, nil
}

// Query returns a builder rooted at the model's endpoint on its own connection.
func (m *Manager) Query(name string) (*Builder, error) {
	s, err := m.Schema(name)
	if err != nil {
		return nil, err
	}
	return m.newBuilder(s, s.Connection)
}

// On returns a builder rooted at the model's endpoint on the named connection.
func (m *Manager) On(name, connection string) (*Builder, error) {
	s, err := m.Schema(name)
	if err != nil {
		return nil, err
	}
	return m.newBuilder(s, connection)
}

// All fetches every record of the model.
func (m *Manager) All(ctx context.Context, name string) (*Collection, error) {
	b, err := m.Query(name)
	if err != nil {
		return nil, err
	}
	return b.Get(ctx)
}

// Hydrate builds existing models from raw records. Attributes are injected
// as-is, without going through SetAttribute.
func (m *Manager) Hydrate(name string, items []any, connection string) (*Collection, error) {
	s, err := m.Schema(name)
	if err != nil {
		return nil, err
	}
	return m.hydrate(s, items, connection)
}

func (m *Manager) hydrate(s *Schema, items []any, connection string) (*Collection, error) {
	models := make([]*Model, 0, len(items))
	for i, item := range items {
		attributes, ok := item.(map[string]any)
		if !ok {
			return nil, shared.InvalidArgument("elegant", "Hydrate",
				"model [%s] record %d is %T, expected an object", s.Name, i, item)
		}
		model := newModel(m, s, connection)
		model.setRawAttributes(attributes, true)
		model.exists = true
		models = append(models, model)
	}
	return NewCollection(models...), nil
}

func (m *Manager) newBuilder(s *Schema, connection string) (*Builder, error) {
	conn, err := m.resolver.Connection(connection)
	if err != nil {
		return nil, err
	}
	q := query.New(conn).From(s.Endpoint)
	return newBuilder(m, s, q, conn.Name()), nil
}
