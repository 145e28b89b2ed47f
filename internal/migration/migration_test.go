package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	sub, err := Migrations()
	require.NoError(t, err)

	entries, err := fs.ReadDir(sub, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCarriesBillingGuards(t *testing.T) {
	sub, err := Migrations()
	require.NoError(t, err)

	core, err := fs.ReadFile(sub, "000001_core.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(core), "ux_currencies_single_base")

	invoices, err := fs.ReadFile(sub, "000002_invoices.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(invoices), "ux_time_entry_billed_once")
	assert.Contains(t, string(invoices), "ux_expense_billed_once")
	assert.Contains(t, string(invoices), "ux_invoices_invoice_number")
}

func TestRunMigrationsRequiresDatabase(t *testing.T) {
	assert.ErrorIs(t, RunMigrations(nil), ErrNilDatabase)
}
