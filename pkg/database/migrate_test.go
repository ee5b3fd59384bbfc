package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_schema.sql", names[0])
	assert.IsNonDecreasing(t, names)
}

func TestSchemaHasThreadTables(t *testing.T) {
	sql, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	for _, table := range []string{"event_collaborators", "event_invites", "message_threads", "thread_messages", "thread_unread", "notification_logs"} {
		assert.True(t, strings.Contains(string(sql), table), table)
	}
	assert.Contains(t, string(sql), "UNIQUE (thread_id, seq)")
}
