package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:6543/x", DSN(ClientConfig{DSN: " postgres://u:p@db:6543/x "}))

	got := DSN(ClientConfig{Host: "db", Database: "clawfi", User: "app", Password: "p@ss/word"})
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/clawfi?sslmode=disable", got)

	got = DSN(ClientConfig{Host: "::1", Port: 5433, Database: "clawfi", User: "app", SSLMode: "require"})
	assert.Equal(t, "postgres://app:@[::1]:5433/clawfi?sslmode=require", got)
}

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_signals.sql", names[0])
	assert.IsNonDecreasing(t, names)
}
