package elegant

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/schoolportal/internal/database"
)

type request struct {
	endpoint string
	query    url.Values
}

// stubTransport answers GETs from canned JSON bodies keyed by endpoint.
type stubTransport struct {
	t         *testing.T
	responses map[string]string
	errors    map[string]error
	requests  []request
}

func newStubTransport(t *testing.T) *stubTransport {
	return &stubTransport{t: t, responses: map[string]string{}, errors: map[string]error{}}
}

func (s *stubTransport) Get(_ context.Context, endpoint string, query url.Values) (any, error) {
	s.requests = append(s.requests, request{endpoint: endpoint, query: query})
	if err, ok := s.errors[endpoint]; ok {
		return nil, err
	}
	body, ok := s.responses[endpoint]
	if !ok {
		return []any{}, nil
	}
	var out any
	require.NoError(s.t, json.Unmarshal([]byte(body), &out))
	return out, nil
}

func studentSchema() Schema {
	return Schema{
		Name:     "Student",
		Endpoint: "students",
		Fields: map[string]Field{
			"Id":        {Type: TypeInt},
			"Name":      {Type: TypeString},
			"Active":    {Type: TypeBool},
			"BirthDate": {Type: TypeDate},
			"Meta":      {Type: TypeJSON},
		},
		Hidden: []string{"Password"},
		Relations: map[string]RelationFunc{
			"Enrollments": func(m *Model) (Relation, error) {
				return m.HasMany("Enrollment", "", "")
			},
			"Broken": func(*Model) (Relation, error) {
				return nil, nil
			},
			"TypedNil": func(*Model) (Relation, error) {
				var r *HasOne
				return r, nil
			},
		},
	}
}

func enrollmentSchema() Schema {
	return Schema{
		Name:     "Enrollment",
		Endpoint: "students/:StudentId/enrollments",
		Fields: map[string]Field{
			"Id":    {Type: TypeInt},
			"Start": {Type: TypeDate},
			"End":   {Type: TypeDate, Format: "02.01.2006"},
		},
		Relations: map[string]RelationFunc{
			"Student": func(m *Model) (Relation, error) {
				return m.HasOne("Student", "Id", "StudentId")
			},
		},
	}
}

func newTestManager(t *testing.T, transport *stubTransport) (*Manager, *database.Connection) {
	t.Helper()

	conn := database.NewConnection(database.Config{Name: "portal", Transport: transport})
	manager, err := NewManager(database.NewResolver("portal", conn), ManagerConfig{Location: time.UTC})
	require.NoError(t, err)
	require.NoError(t, manager.Register(studentSchema()))
	require.NoError(t, manager.Register(enrollmentSchema()))
	return manager, conn
}
