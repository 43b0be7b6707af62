package tables_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-events/event-aggregator/internal/adapters/database/memory"
	"github.com/campus-events/event-aggregator/internal/adapters/database/tables"
)

func TestUpdateRows(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.WriteTable(ctx, tables.Registrations, []tables.Row{
		{"Registration_ID": "R1", "Event_ID": "E1", "Status": "registered"},
		{"Registration_ID": "R2", "Event_ID": "E2", "Status": "registered"},
		{"Registration_ID": "R3", "Event_ID": "E1", "Status": "registered"},
	}))

	n, err := tables.UpdateRows(ctx, s, tables.Registrations,
		func(r tables.Row) bool { return r.Get("Event_ID") == "E1" },
		func(r tables.Row) { r["Status"] = "cancelled" },
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.ReadTable(ctx, tables.Registrations)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", rows[0].Get("Status"))
	assert.Equal(t, "registered", rows[1].Get("Status"))
	assert.Equal(t, "cancelled", rows[2].Get("Status"))

	n, err = tables.UpdateRows(ctx, s, tables.Registrations,
		func(r tables.Row) bool { return r.Get("Event_ID") == "nope" },
		func(r tables.Row) { r["Status"] = "x" },
	)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteRows(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.WriteTable(ctx, tables.Events, []tables.Row{
		{"Event_ID": "E1"}, {"Event_ID": "E2"}, {"Event_ID": "E3"},
	}))

	n, err := tables.DeleteRows(ctx, s, tables.Events, func(r tables.Row) bool { return r.Get("Event_ID") != "E2" })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.ReadTable(ctx, tables.Events)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "E2", rows[0].Get("Event_ID"))
}

func TestMigrateCreatesTables(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.WriteTable(ctx, tables.Users, []tables.Row{{"ID": "1", "Email": "a@x.edu"}}))

	require.NoError(t, tables.Migrate(ctx, s, tables.DefaultSchema))

	for _, name := range tables.DefaultSchema.Names() {
		_, err := s.ReadTable(ctx, name)
		require.NoError(t, err, name)
	}
	users, err := s.ReadTable(ctx, tables.Users)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "a@x.edu", users[0].Get("Email"))
	_, ok := users[0]["Is_Admin"]
	assert.True(t, ok)
}

func TestColumnsKeepsExtras(t *testing.T) {
	cols := tables.DefaultSchema.Columns(tables.Users, []tables.Row{{"Zeta": "1", "Alpha": "2", "Email": "x"}})
	assert.Equal(t, tables.DefaultSchema[tables.Users], cols[:len(tables.DefaultSchema[tables.Users])])
	assert.Equal(t, []string{"Alpha", "Zeta"}, cols[len(cols)-2:])
}

func TestUnavailableWrapsSentinel(t *testing.T) {
	err := tables.Unavailable(tables.Events, assert.AnError)
	assert.ErrorIs(t, err, tables.ErrStorageUnavailable)
	assert.True(t, strings.Contains(err.Error(), tables.Events))
}
