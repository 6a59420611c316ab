package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/schoolportal/internal/database"
	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

type call struct {
	method   string
	endpoint string
	params   []database.Param
}

type fakeConnection struct {
	calls     []call
	result    any
	err       error
	processor database.Processor
}

func (f *fakeConnection) Select(_ context.Context, endpoint string, params []database.Param) (any, error) {
	f.calls = append(f.calls, call{"select", endpoint, params})
	return f.result, f.err
}

func (f *fakeConnection) Insert(_ context.Context, endpoint string, params []database.Param) (bool, error) {
	f.calls = append(f.calls, call{"insert", endpoint, params})
	return true, f.err
}

func (f *fakeConnection) Update(_ context.Context, endpoint string, params []database.Param) (bool, error) {
	f.calls = append(f.calls, call{"update", endpoint, params})
	return true, f.err
}

func (f *fakeConnection) PostProcessor() database.Processor {
	return f.processor
}

func TestBuilder_WhereRecordsConstraintAndBinding(t *testing.T) {
	b := New(&fakeConnection{}).From("students").Where("Cohort", "2024").Where("Active", true)

	assert.Equal(t, []Where{
		{Type: WhereBasic, Column: "Cohort", Value: "2024"},
		{Type: WhereBasic, Column: "Active", Value: true},
	}, b.Wheres())
	assert.Equal(t, []any{"2024", true}, b.GetBindings())
	params, err := b.Params()
	require.NoError(t, err)
	assert.Equal(t, []database.Param{{Key: "Cohort", Value: "2024"}, {Key: "Active", Value: true}}, params)
}

func TestBuilder_DynamicWhere(t *testing.T) {
	b := New(&fakeConnection{})

	_, err := b.DynamicWhere("whereFirstNameAndCohortId", "Aida", 7)
	require.NoError(t, err)

	assert.Equal(t, []Where{
		{Type: WhereBasic, Column: "FirstName", Value: "Aida"},
		{Type: WhereBasic, Column: "CohortId", Value: 7},
	}, b.Wheres())
}

func TestBuilder_DynamicWhereKeepsLowercaseAnd(t *testing.T) {
	b := New(&fakeConnection{})

	_, err := b.DynamicWhere("whereBandAndAndrew", "x", "y")
	require.NoError(t, err)

	wheres := b.Wheres()
	require.Len(t, wheres, 2)
	assert.Equal(t, "Band", wheres[0].Column)
	assert.Equal(t, "Andrew", wheres[1].Column)
}

func TestBuilder_DynamicWhereMissingArgument(t *testing.T) {
	_, err := New(&fakeConnection{}).DynamicWhere("whereNameAndAge", "Aida")
	assert.True(t, errors.Is(err, shared.ErrInvalidArgument))
}

func TestSplitFinder(t *testing.T) {
	tests := []struct {
		finder string
		want   []string
	}{
		{"Id", []string{"Id"}},
		{"NameAndAge", []string{"Name", "Age"}},
		{"AAndBAndC", []string{"A", "B", "C"}},
		{"Brand", []string{"Brand"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.finder, func(t *testing.T) {
			assert.Equal(t, tt.want, splitFinder(tt.finder))
		})
	}
}

func TestBuilder_AddBindingFlattensInInsertionOrder(t *testing.T) {
	b := New(&fakeConnection{})

	require.NoError(t, b.AddBinding(1, BindingWhere))
	require.NoError(t, b.AddBinding([]any{2, 3}, BindingWhere))
	require.NoError(t, b.AddBinding("four", BindingWhere))

	assert.Equal(t, []any{1, 2, 3, "four"}, b.GetBindings())
	assert.Equal(t, map[string][]any{BindingWhere: {1, 2, 3, "four"}}, b.GetRawBindings())
}

func TestBuilder_UnknownBindingGroup(t *testing.T) {
	b := New(&fakeConnection{})

	err := b.AddBinding(1, "having")
	assert.True(t, shared.IsInvalidArgument(err))

	err = b.SetBindings([]any{1}, "order")
	assert.True(t, shared.IsInvalidArgument(err))

	_, ok := b.GetRawBindings()["having"]
	assert.False(t, ok, "unknown group must not be created")
}

func TestBuilder_SetBindingsReplaces(t *testing.T) {
	b := New(&fakeConnection{}).Where("Id", 1)

	require.NoError(t, b.SetBindings([]any{5, 6}, BindingWhere))
	assert.Equal(t, []any{5, 6}, b.GetBindings())
}

func TestBuilder_GetSendsReportedBindings(t *testing.T) {
	conn := &fakeConnection{result: []any{}}
	b := New(conn).From("students").Where("Cohort", "2023").Where("Active", true)

	require.NoError(t, b.SetBindings([]any{"2024", false}, BindingWhere))
	require.NoError(t, b.AddBinding(database.Param{Key: "Year", Value: 2025}, BindingWhere))
	_, err := b.Get(context.Background())
	require.NoError(t, err)

	require.Len(t, conn.calls, 1)
	sent := conn.calls[0].params
	assert.Equal(t, []database.Param{
		{Key: "Cohort", Value: "2024"},
		{Key: "Active", Value: false},
		{Key: "Year", Value: 2025},
	}, sent)

	values := make([]any, len(sent))
	for i, p := range sent {
		values[i] = p.Value
	}
	assert.Equal(t, b.GetBindings(), values)
}

func TestBuilder_SetBindingsCanDropConstraints(t *testing.T) {
	conn := &fakeConnection{result: []any{}}
	b := New(conn).From("students").Where("Cohort", "2023").Where("Active", true)

	require.NoError(t, b.SetBindings([]any{"2024"}, BindingWhere))
	_, err := b.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []database.Param{{Key: "Cohort", Value: "2024"}}, conn.calls[0].params)
}

func TestBuilder_BindingWithoutColumnFails(t *testing.T) {
	conn := &fakeConnection{result: []any{}}
	b := New(conn).From("students").Where("Cohort", "2023")
	require.NoError(t, b.AddBinding("orphan", BindingWhere))

	_, err := b.Get(context.Background())
	assert.True(t, shared.IsInvalidArgument(err))

	_, err = b.Update(context.Background(), map[string]any{"Status": "left"})
	assert.True(t, shared.IsInvalidArgument(err))
	assert.Empty(t, conn.calls)
	assert.Contains(t, b.String(), "no column")
}

func TestBuilder_Get(t *testing.T) {
	conn := &fakeConnection{result: []any{map[string]any{"Id": float64(1)}}}
	b := New(conn).From("students").Where("Id", 1)

	rows, err := b.Get(context.Background())
	require.NoError(t, err)

	assert.Len(t, rows, 1)
	require.Len(t, conn.calls, 1)
	assert.Equal(t, "select", conn.calls[0].method)
	assert.Equal(t, "students", conn.calls[0].endpoint)
	assert.Equal(t, []database.Param{{Key: "Id", Value: 1}}, conn.calls[0].params)
}

func TestBuilder_GetNormalizesSingleObject(t *testing.T) {
	conn := &fakeConnection{result: map[string]any{"Id": float64(1)}}

	rows, err := New(conn).From("students/1").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"Id": float64(1)}}, rows)
}

func TestBuilder_GetUsesPostProcessor(t *testing.T) {
	conn := &fakeConnection{
		result:    map[string]any{"success": true, "data": []any{"a", "b"}},
		processor: database.EnvelopeProcessor{},
	}

	rows, err := New(conn).From("students").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, rows)
}

func TestBuilder_GetPropagatesErrors(t *testing.T) {
	conn := &fakeConnection{err: errors.New("boom")}

	_, err := New(conn).From("students").Get(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestBuilder_InsertEmptyDoesNothing(t *testing.T) {
	conn := &fakeConnection{}
	b := New(conn).From("students")

	ok, err := b.Insert(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Insert(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Empty(t, conn.calls)
	assert.Empty(t, b.GetBindings())
}

func TestBuilder_InsertSortsColumns(t *testing.T) {
	conn := &fakeConnection{}
	b := New(conn).From("students")

	ok, err := b.Insert(context.Background(),
		map[string]any{"Name": "Aida", "Id": 1},
		map[string]any{"Id": 2, "Name": "Arman"},
	)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, conn.calls, 1)
	assert.Equal(t, []database.Param{
		{Key: "Id", Value: 1}, {Key: "Name", Value: "Aida"},
		{Key: "Id", Value: 2}, {Key: "Name", Value: "Arman"},
	}, conn.calls[0].params)
}

func TestBuilder_Update(t *testing.T) {
	conn := &fakeConnection{}
	b := New(conn).From("students/:Id").Where("Id", 3)

	_, err := b.Update(context.Background(), map[string]any{"Name": "Dana"})
	require.NoError(t, err)

	require.Len(t, conn.calls, 1)
	assert.Equal(t, "update", conn.calls[0].method)
	assert.Equal(t, []database.Param{{Key: "Name", Value: "Dana"}, {Key: "Id", Value: 3}}, conn.calls[0].params)
}

func TestBuilder_CloneIsDeep(t *testing.T) {
	original := New(&fakeConnection{}).From("students").Where("Cohort", "A")
	clone := original.Clone()
	clone.Where("Active", true)
	require.NoError(t, clone.AddBinding("x", BindingWhere))

	assert.Len(t, original.Wheres(), 1)
	assert.Equal(t, []any{"A"}, original.GetBindings())
	assert.Len(t, clone.Wheres(), 2)
	assert.Equal(t, "students", clone.Endpoint())
}

func TestBuilder_Call(t *testing.T) {
	conn := &fakeConnection{result: []any{}}
	b := New(conn)
	ctx := context.Background()

	_, err := b.Call(ctx, "from", "students")
	require.NoError(t, err)
	_, err = b.Call(ctx, "where", "Id", 1)
	require.NoError(t, err)
	_, err = b.Call(ctx, "whereCohortAndActive", "A", true)
	require.NoError(t, err)

	bindings, err := b.Call(ctx, "getBindings")
	require.NoError(t, err)
	assert.Equal(t, []any{1, "A", true}, bindings)

	ok, err := b.Call(ctx, "insert")
	require.NoError(t, err)
	assert.Equal(t, true, ok)
	assert.Empty(t, conn.calls)
}

func TestBuilder_CallRoutesBothFinderPrefixes(t *testing.T) {
	b := New(&fakeConnection{})
	ctx := context.Background()

	_, err := b.Call(ctx, "whereCohort", "A")
	require.NoError(t, err)
	_, err = b.Call(ctx, "WhereNameAndActive", "Aida", true)
	require.NoError(t, err)

	assert.Equal(t, []any{"A", "Aida", true}, b.GetBindings())
	assert.Equal(t, "Name", b.Wheres()[1].Column)

	_, err = b.Call(ctx, "Where")
	var undefined *shared.UndefinedMethodError
	assert.True(t, errors.As(err, &undefined))
}

func TestBuilder_CallUndefinedMethod(t *testing.T) {
	_, err := New(&fakeConnection{}).Call(context.Background(), "frobnicate")

	var undefined *shared.UndefinedMethodError
	require.True(t, errors.As(err, &undefined))
	assert.Equal(t, "frobnicate", undefined.Method)
	assert.Equal(t, "query.Builder", undefined.Type)
}
