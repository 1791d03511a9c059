package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)
	assert.ErrorIs(t, EnsureSchema(context.Background(), db), assert.AnError)
}

func TestSchemaKeepsLedgerIndependentOfUsers(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS transactions")
	assert.NotContains(t, schemaSQL, "REFERENCES users")
}

func TestGetConfig_DSN(t *testing.T) {
	viper.Set("database.host", "db.internal")
	viper.Set("database.name", "wallet_test")
	defer viper.Reset()

	cfg := GetConfig()
	assert.Equal(t, "5432", cfg.Port)
	assert.Equal(t, "host=db.internal port=5432 user=postgres password=password dbname=wallet_test sslmode=disable", cfg.DSN())
}
