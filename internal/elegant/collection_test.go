package elegant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection(t *testing.T) {
	manager, _ := newTestManager(t, newStubTransport(t))
	models, err := manager.Hydrate("Student", []any{
		map[string]any{"Id": float64(1), "Name": "Aida", "Password": "x"},
		map[string]any{"Id": float64(2), "Name": "Arman"},
		map[string]any{"Id": "3", "Name": "Dana"},
	}, "")
	require.NoError(t, err)

	t.Run("find compares keys loosely", func(t *testing.T) {
		assert.Equal(t, "Aida", models.Find(1).String("Name"))
		assert.Equal(t, "Dana", models.Find(3).String("Name"))
		assert.Equal(t, "Arman", models.Find("2").String("Name"))
		assert.Nil(t, models.Find(4))
		assert.Nil(t, models.Find(nil))
	})

	t.Run("find accepts a model", func(t *testing.T) {
		assert.Same(t, models.All()[1], models.Find(models.All()[1]))
	})

	t.Run("contains", func(t *testing.T) {
		assert.True(t, models.Contains(2))
		assert.False(t, models.Contains(9))
	})

	t.Run("filter and each", func(t *testing.T) {
		filtered := models.Filter(func(m *Model) bool { return m.String("Name") != "Aida" })
		assert.Equal(t, 2, filtered.Len())
		assert.Equal(t, 3, models.Len(), "filter must not modify the source")

		var seen []string
		models.Each(func(i int, m *Model) bool {
			seen = append(seen, m.String("Name"))
			return i < 1
		})
		assert.Equal(t, []string{"Aida", "Arman"}, seen)
	})

	t.Run("json hides hidden attributes", func(t *testing.T) {
		raw, err := json.Marshal(models)
		require.NoError(t, err)

		var out []map[string]any
		require.NoError(t, json.Unmarshal(raw, &out))
		require.Len(t, out, 3)
		assert.NotContains(t, out[0], "Password")
		assert.Equal(t, "Aida", out[0]["Name"])
	})
}

func TestCollection_Empty(t *testing.T) {
	c := NewCollection()

	assert.True(t, c.IsEmpty())
	assert.Nil(t, c.First())
	assert.Empty(t, c.Keys())

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
