package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	goose.SetBaseFS(files)
	t.Cleanup(func() { goose.SetBaseFS(nil) })

	collected, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	require.NoError(t, err)
	require.NotEmpty(t, collected)
	assert.Equal(t, int64(1), collected[0].Version)
}

func TestInitMigrationConstraints(t *testing.T) {
	data, err := fs.ReadFile(files, "sql/00001_init.sql")
	require.NoError(t, err)
	sql := string(data)

	assert.Contains(t, sql, "-- +goose Up")
	assert.Contains(t, sql, "-- +goose Down")
	assert.Contains(t, sql, "UNIQUE (tender_id, supplier_id)")
	assert.Contains(t, sql, "UNIQUE (proposal_id, tender_line_item_id)")
	assert.True(t, strings.Contains(sql, "ON DELETE CASCADE"))
	assert.Contains(t, sql, "line_total          NUMERIC        NOT NULL")
	assert.Contains(t, sql, "unit_price          NUMERIC(20, 4)")
}
