package database

import (
	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

// Resolver hands out named connections. It replaces the ambient static
// resolver: models receive it explicitly through the elegant manager.
type Resolver struct {
	connections map[string]*Connection
	defaultName string
}

// NewResolver creates a resolver whose default connection is defaultName.
func NewResolver(defaultName string, conns ...*Connection) *Resolver {
	r := &Resolver{
		connections: make(map[string]*Connection),
		defaultName: defaultName,
	}
	for _, c := range conns {
		r.AddConnection(c)
	}
	return r
}

// AddConnection registers a connection under its name.
func (r *Resolver) AddConnection(conn *Connection) {
	r.connections[conn.Name()] = conn
}

// HasConnection reports whether a connection with the name is registered.
func (r *Resolver) HasConnection(name string) bool {
	_, ok := r.connections[name]
	return ok
}

// Connection returns the named connection. An empty name selects the default.
func (r *Resolver) Connection(name string) (*Connection, error) {
	if name == "" {
		name = r.defaultName
	}
	conn, ok := r.connections[name]
	if !ok {
		return nil, shared.InvalidArgument("database", "Connection", "connection [%s] not configured", name)
	}
	return conn, nil
}

// DefaultConnection returns the default connection name.
func (r *Resolver) DefaultConnection() string {
	return r.defaultName
}

// SetDefaultConnection changes the default connection name.
func (r *Resolver) SetDefaultConnection(name string) {
	r.defaultName = name
}
