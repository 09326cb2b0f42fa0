package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_HashStableUnderReordering(t *testing.T) {
	a := Schema{Tables: []TableDef{
		{Name: "users", Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}, {Name: "name", Type: "TEXT"}}},
		{Name: "posts", Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}}},
	}}
	b := Schema{Tables: []TableDef{
		{Name: "posts", Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}}},
		{Name: "users", Columns: []ColumnDef{{Name: "name", Type: "TEXT"}, {Name: "id", Type: "INTEGER", PrimaryKey: true}}},
	}}
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestDiffSchemas_AddedAndDroppedTablesAndColumns(t *testing.T) {
	old := Schema{Tables: []TableDef{
		{Name: "users", Columns: []ColumnDef{{Name: "id", Type: "INTEGER"}}},
		{Name: "legacy", Columns: []ColumnDef{{Name: "id", Type: "INTEGER"}}},
	}}
	next := Schema{Tables: []TableDef{
		{Name: "users", Columns: []ColumnDef{{Name: "id", Type: "INTEGER"}, {Name: "email", Type: "TEXT"}}},
		{Name: "posts", Columns: []ColumnDef{{Name: "id", Type: "INTEGER"}}},
	}}

	diff := DiffSchemas(old, next)
	assert.Equal(t, 1, diff.TablesAdded())
	assert.Equal(t, "posts", diff.AddedTables[0].Name)
	assert.Equal(t, []string{"legacy"}, diff.DroppedTables)
	assert.Equal(t, 1, diff.ColumnsAdded())
	assert.Equal(t, "email", diff.AddedColumns["users"][0].Name)
}

func TestMigrate_AppliesOnceThenSkipsOnSameHash(t *testing.T) {
	a, err := Open(":memory:")
	require.NoError(t, err)
	defer a.Disconnect()

	target := Schema{Version: "v1", Tables: []TableDef{
		{Name: "widgets", Columns: []ColumnDef{{Name: "id", Type: "INTEGER", PrimaryKey: true}, {Name: "name", Type: "TEXT"}}},
	}}

	confirmed := false
	confirm := func(summary string) bool { confirmed = true; return true }

	rec, err := Migrate(a, Schema{}, target, confirm)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, confirmed)
	assert.Equal(t, StatusSuccess, rec.Status)
	assert.Equal(t, 1, rec.TablesAdded)

	var tableCount int
	require.NoError(t, a.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='widgets'").Scan(&tableCount))
	assert.Equal(t, 1, tableCount)

	confirmed = false
	rec2, err := Migrate(a, Schema{}, target, confirm)
	require.NoError(t, err)
	assert.Nil(t, rec2)
	assert.False(t, confirmed, "second migration with identical hash must skip confirmation entirely")
}

func TestMigrate_RefusesWithoutConfirmFn(t *testing.T) {
	a, err := Open(":memory:")
	require.NoError(t, err)
	defer a.Disconnect()

	target := Schema{Tables: []TableDef{{Name: "t", Columns: []ColumnDef{{Name: "id", Type: "INTEGER"}}}}}

	_, err = Migrate(a, Schema{}, target, nil)
	require.Error(t, err)
}
