package packer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/entity"
	"github.com/acronis/perfkit/entitydb/entity/entitytest"
)

// employeeRow follows the select order: id, name, grade, salary, hired, updated,
// department_id, manager_id, signature
func employeeRow(id int64, name string) []interface{} {
	return []interface{}{id, []byte(name), "B", 1500.5, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
		"2021-03-04 05:06:07", int64(10), nil, []byte{0xca, 0xfe}}
}

func TestEntities(t *testing.T) {
	var c = entitytest.Catalog()
	var emp = c.MustDefinition(entitytest.Employee)
	var rows = db.NewSurrogateRows(employeeRow(1, "Alice"), employeeRow(2, "Bob"))

	var result, err = Entities(emp, rows, -1).All()
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.True(t, rows.Closed())

	var e = result[0]
	assert.Equal(t, int64(1), e.Get("id"))
	assert.Equal(t, "Alice", e.Get("name"))
	assert.Equal(t, 'B', e.Get("grade"))
	assert.Equal(t, 1500.5, e.Get("salary"))
	assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), e.Get("updated"))
	assert.Equal(t, []byte{0xca, 0xfe}, e.Get("signature"))
	assert.True(t, e.Contains("manager_id"), "null is loaded")
	assert.Nil(t, e.Get("manager_id"))
	assert.False(t, e.Contains("department"), "references are not packed")
	assert.False(t, e.Contains("photo"), "lazy blobs are not selected")
	assert.False(t, e.IsModified())
}

func TestEntitiesBounded(t *testing.T) {
	var emp = entitytest.Catalog().MustDefinition(entitytest.Employee)
	var rows = db.NewSurrogateRows(employeeRow(1, "a"), employeeRow(2, "b"), employeeRow(3, "c"))

	var it = Entities(emp, rows, 2)
	require.True(t, it.Next())
	require.True(t, it.Next())
	assert.Equal(t, int64(2), it.Entity().Get("id"))
	assert.False(t, it.Next())
	assert.Nil(t, it.Entity())
	assert.NoError(t, it.Err())
	assert.True(t, rows.Closed())
	assert.False(t, it.Next(), "not restartable")

	result, err := Entities(emp, db.NewSurrogateRows(employeeRow(1, "a")), 0).All()
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestTransientSeededWithNull(t *testing.T) {
	var dept = entitytest.Catalog().MustDefinition(entitytest.Department)
	var rows = db.NewSurrogateRows(
		[]interface{}{int64(10), "R&D", nil, "Y"},
		[]interface{}{int64(20), "Ops", int64(1), "N"},
		[]interface{}{int64(30), "Old", int64(1), nil},
	)

	var result, err = Entities(dept, rows, -1).All()
	require.NoError(t, err)
	require.Len(t, result, 3)

	assert.True(t, result[0].Contains("selected"))
	assert.Nil(t, result[0].Get("selected"))
	assert.Equal(t, true, result[0].Get("active"))
	assert.Equal(t, false, result[1].Get("active"))
	assert.Nil(t, result[2].Get("active"))
}

func TestCoercionErrorNamesProperty(t *testing.T) {
	var emp = entitytest.Catalog().MustDefinition(entitytest.Employee)
	var row = employeeRow(1, "a")
	row[3] = "lots"

	var it = Entities(emp, db.NewSurrogateRows(row), -1)
	assert.False(t, it.Next())

	var coercionErr *CoercionError
	require.True(t, errors.As(it.Err(), &coercionErr))
	assert.Equal(t, "employee", coercionErr.EntityType)
	assert.Equal(t, "salary", coercionErr.Property)
	assert.Contains(t, it.Err().Error(), "property 'salary'")
}

func TestRowsErrorEndsIteration(t *testing.T) {
	var emp = entitytest.Catalog().MustDefinition(entitytest.Employee)
	var failure = errors.New("connection reset")

	var result, err = Entities(emp, db.NewSurrogateRows(employeeRow(1, "a")).WithErr(failure), -1).All()
	assert.ErrorIs(t, err, failure)
	assert.Len(t, result, 1)
}

func TestCoerce(t *testing.T) {
	var c = entitytest.Catalog()
	var emp = c.MustDefinition(entitytest.Employee)

	var cases = []struct {
		prop string
		raw  interface{}
		want interface{}
	}{
		{"id", []byte("42"), int64(42)},
		{"id", 42.0, int64(42)},
		{"id", nil, nil},
		{"salary", int64(3), 3.0},
		{"salary", []byte("2.5"), 2.5},
		{"salary", nil, nil},
		{"grade", "", nil},
		{"grade", []byte("Xyz"), 'X'},
		{"hired", "2020-05-06", time.Date(2020, 5, 6, 0, 0, 0, 0, time.UTC)},
		{"updated", "2020-05-06T07:08:09Z", time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)},
		{"signature", "ab", []byte("ab")},
	}

	for _, tc := range cases {
		var v, err = Coerce(emp.MustProperty(tc.prop), tc.raw)
		require.NoError(t, err, tc.prop)
		assert.Equal(t, tc.want, v, tc.prop)
	}

	for _, bad := range []struct {
		prop string
		raw  interface{}
	}{
		{"id", 1.5},
		{"id", true},
		{"hired", "yesterday"},
		{"name", 12},
	} {
		var _, err = Coerce(emp.MustProperty(bad.prop), bad.raw)
		assert.Error(t, err, bad.prop)
	}

	var flag = entity.ColumnProperty("flag", entity.Boolean)
	for raw, want := range map[interface{}]interface{}{int64(1): true, int64(0): false, "true": true, true: true} {
		var v, err = Coerce(flag, raw)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestValues(t *testing.T) {
	var emp = entitytest.Catalog().MustDefinition(entitytest.Employee)
	var rows = db.NewSurrogateRows([]interface{}{[]byte("Alice")}, []interface{}{"Bob"})

	var values, err = Values(emp.MustProperty("name"), rows)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Alice", "Bob"}, values)
	assert.True(t, rows.Closed())
}

func TestCount(t *testing.T) {
	var n, err = Count(&db.CountRows{Count: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	var rows = db.NewSurrogateRows([]interface{}{nil})
	require.True(t, rows.Next())
	n, err = Count(rows)
	require.NoError(t, err)
	assert.Zero(t, n)
}
