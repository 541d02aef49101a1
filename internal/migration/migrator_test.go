package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrations "github.com/Additional-Code/fulfillment/db/migrations"
)

func TestGooseDialect(t *testing.T) {
	cases := map[string]string{"postgres": "postgres", "pg": "postgres", "mysql": "mysql", "sqlite": "sqlite3"}
	for driver, want := range cases {
		got, err := gooseDialect(driver)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := gooseDialect("oracle")
	assert.Error(t, err)
}

func TestIsNoMigrationErr(t *testing.T) {
	assert.False(t, isNoMigrationErr(nil))
	assert.True(t, isNoMigrationErr(goose.ErrNoNextVersion))
	assert.True(t, isNoMigrationErr(fmt.Errorf("wrapped: %w", goose.ErrNoMigrationFiles)))
	assert.False(t, isNoMigrationErr(errors.New("syntax error")))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := fs.Glob(migrations.FS, migrations.Dir+"/*.sql")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
