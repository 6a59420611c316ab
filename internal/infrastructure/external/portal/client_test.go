package portal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*ClientConfig)) (*Client, *int32) {
	t.Helper()

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	config := DefaultClientConfig("astana", "alem.school")
	config.BaseURL = server.URL + "/api"
	config.Token = "secret"
	config.RateLimiterConfig = RateLimiterConfig{}
	if mutate != nil {
		mutate(&config)
	}

	client, err := NewClient(config)
	require.NoError(t, err)
	return client, &hits
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.items[key]
	return body, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, body []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = body
	return nil
}

type memorySessions struct {
	stored string
	saved  []string
}

func (s *memorySessions) Load(context.Context, string) (string, error) { return s.stored, nil }

func (s *memorySessions) Save(_ context.Context, _ string, value string) error {
	s.saved = append(s.saved, value)
	return nil
}

func TestNewClient_BaseURL(t *testing.T) {
	client, err := NewClient(DefaultClientConfig("astana", "alem.school"))
	require.NoError(t, err)
	assert.Equal(t, "https://astana.alem.school/api/", client.BaseURL())

	_, err = NewClient(ClientConfig{School: "astana"})
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = NewClient(ClientConfig{BaseURL: "not a url"})
	assert.True(t, shared.IsInvalidArgument(err))
}

func TestClient_Get(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/students/7/enrollments", r.URL.Path)
		assert.Equal(t, "A", r.URL.Query().Get("Cohort"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "data": [{"Id": 1}]}`))
	}, nil)

	value, err := client.Get(context.Background(), "students/7/enrollments", url.Values{"Cohort": {"A"}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"success": true,
		"data":    []any{map[string]any{"Id": float64(1)}},
	}, value)
}

func TestClient_GetEmptyBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	value, err := client.Get(context.Background(), "students", nil)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestClient_APIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    error
		message string
	}{
		{"not found", http.StatusNotFound, `{"message": "student not found"}`, shared.ErrNotFound, "student not found"},
		{"unauthorized", http.StatusUnauthorized, `{"error": "token expired"}`, shared.ErrUnauthorized, "token expired"},
		{"server error", http.StatusBadGateway, `<html>`, shared.ErrServiceUnavailable, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, nil)

			_, err := client.Get(context.Background(), "students/1", nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, "students/1", apiErr.Endpoint)
		})
	}
}

func TestClient_RateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)

	_, err := client.Get(context.Background(), "students", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrRateLimited))

	var rateLimitErr *RateLimitError
	require.True(t, errors.As(err, &rateLimitErr))
	assert.Equal(t, 3*time.Second, rateLimitErr.RetryAfter)
	assert.Equal(t, "closed", client.Status().Breaker)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}, func(c *ClientConfig) {
		c.BreakerThreshold = 2
		c.BreakerTimeout = time.Hour
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.Get(ctx, "missing", nil)
		assert.True(t, shared.IsNotFound(err))
	}
	assert.True(t, client.Status().IsHealthy)

	_, _ = client.Get(ctx, "students", nil)
	_, _ = client.Get(ctx, "students", nil)
	assert.Equal(t, "open", client.Status().Breaker)

	_, err := client.Get(ctx, "students", nil)
	assert.True(t, errors.Is(err, shared.ErrServiceUnavailable))
	assert.EqualValues(t, 5, atomic.LoadInt32(hits))

	client.Reset()
	assert.True(t, client.Status().IsHealthy)
}

func TestClient_ResponseCache(t *testing.T) {
	cache := &memoryCache{items: map[string][]byte{}}
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Id": 1}]`))
	}, func(c *ClientConfig) {
		c.Cache = cache
	})
	ctx := context.Background()

	first, err := client.Get(ctx, "students", url.Values{"Cohort": {"A"}})
	require.NoError(t, err)
	second, err := client.Get(ctx, "students", url.Values{"Cohort": {"A"}})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	assert.Contains(t, cache.items, client.cacheKey(client.BaseURL()+"students?Cohort=A"))

	_, err = client.Get(ctx, "students", url.Values{"Cohort": {"B"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))
}

func TestClient_SessionCookie(t *testing.T) {
	sessions := &memorySessions{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("portal_session"); assert.NoError(t, err) {
			assert.Equal(t, "seeded", cookie.Value)
		}

		http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "rotated", Path: "/"})
		_, _ = w.Write([]byte(`[]`))
	}, func(c *ClientConfig) {
		c.SessionCookie = "seeded"
		c.Sessions = sessions
	})

	_, err := client.Get(context.Background(), "students", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rotated"}, sessions.saved)
}

func TestClient_RestoreSession(t *testing.T) {
	sessions := &memorySessions{stored: "from-store"}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie("portal_session"); assert.NoError(t, err) {
			assert.Equal(t, "from-store", cookie.Value)
		}
		_, _ = w.Write([]byte(`[]`))
	}, func(c *ClientConfig) {
		c.Sessions = sessions
	})
	ctx := context.Background()

	require.NoError(t, client.RestoreSession(ctx))
	_, err := client.Get(ctx, "students", nil)
	require.NoError(t, err)
	assert.Empty(t, sessions.saved, "an unchanged cookie is not saved again")
}

func TestClient_SubstitutedSegmentsAreEscapedOnce(t *testing.T) {
	tests := []struct {
		name        string
		endpoint    string
		wantPath    string
		wantEscaped string
	}{
		{"space", "students/ab%20cd/enrollments", "/api/students/ab cd/enrollments", "/api/students/ab%20cd/enrollments"},
		{"cyrillic", "students/" + url.PathEscape("айдана") + "/enrollments", "/api/students/айдана/enrollments", "/api/students/%D0%B0%D0%B9%D0%B4%D0%B0%D0%BD%D0%B0/enrollments"},
		{"slash", "students/a%2Fb/enrollments", "/api/students/a/b/enrollments", "/api/students/a%2Fb/enrollments"},
		{"plain", "/students/7", "/api/students/7", "/api/students/7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, tt.wantEscaped, r.URL.EscapedPath())
				_, _ = w.Write([]byte(`[]`))
			}, nil)

			_, err := client.Get(context.Background(), tt.endpoint, nil)
			require.NoError(t, err)
		})
	}
}

func TestClient_ResponseCacheIsScopedToCredentials(t *testing.T) {
	cache := &memoryCache{items: map[string][]byte{}}
	var served int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&served, 1)
		_, _ = w.Write([]byte(`[{"Owner": "` + r.Header.Get("Authorization") + `"}]`))
	}))
	t.Cleanup(server.Close)

	newClient := func(token string) *Client {
		config := DefaultClientConfig("astana", "alem.school")
		config.BaseURL = server.URL + "/api"
		config.Token = token
		config.RateLimiterConfig = RateLimiterConfig{}
		config.Cache = cache
		client, err := NewClient(config)
		require.NoError(t, err)
		return client
	}
	ctx := context.Background()

	first, err := newClient("alice").Get(ctx, "students", nil)
	require.NoError(t, err)
	second, err := newClient("bob").Get(ctx, "students", nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&served))
	assert.NotEqual(t, first, second)
	assert.Len(t, cache.items, 2)

	_, err = newClient("alice").Get(ctx, "students", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&served))
}
