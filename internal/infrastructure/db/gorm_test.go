package db

import (
	"testing"

	"p2p-credit-backend/internal/domain/escrow"
	"p2p-credit-backend/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func TestOpenGormWithDialector_Success(t *testing.T) {
	gdb, err := OpenGormWithDialector(sqlite.Open(":memory:"), logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, gdb)
	assert.True(t, gdb.Config.TranslateError)
}

func TestOpenGorm_BadDSNFails(t *testing.T) {
	_, err := OpenGorm("nobody:nothing@tcp(127.0.0.1:1)/none?timeout=200ms", nil)
	assert.Error(t, err)
}

func TestMigrate_CreatesAllTables(t *testing.T) {
	gdb, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))

	for _, table := range []string{
		"accounts", "transactions", "marketplace_offers", "loan_contracts",
		"holds", "escrow_events", "repayments", "approvals", "reconciliation_discrepancies",
	} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
	assert.True(t, gdb.Migrator().HasIndex(&escrow.Hold{}, "ux_holds_active_loan"))
}

func TestOpenSQLite_SingleConnection(t *testing.T) {
	gdb, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}
