package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/pujcovna/internal/auth"
	"github.com/erazemk/pujcovna/internal/config"
	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/store"
)

func TestParseFlagsOverridesEnvironment(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Path = "env.sqlite3"
	cfg.Server.Addr = ":9000"
	cfg.AdminUser = "Admin"

	require.NoError(t, parseFlags(cfg, []string{"-d", "flag.sqlite3", "-user", "Boss"}))

	assert.Equal(t, "flag.sqlite3", cfg.Database.Path)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "Boss", cfg.AdminUser)
}

func TestParseFlagsRejectsArguments(t *testing.T) {
	assert.Error(t, parseFlags(&config.Config{}, []string{"serve"}))
}

func TestEnsureAdminRunsOnce(t *testing.T) {
	ctx := context.Background()
	database := db.NewTestDB(t)

	password, err := ensureAdmin(ctx, database, "Admin")
	require.NoError(t, err)
	require.Len(t, password, 16)

	user, err := store.GetUserByUsername(ctx, database, "Admin")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, model.RoleAdmin, user.Role)
	assert.NoError(t, auth.CheckPassword(user.PasswordHash, password))

	again, err := ensureAdmin(ctx, database, "Other")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestGeneratePasswordIsRandom(t *testing.T) {
	a, err := generatePassword(16)
	require.NoError(t, err)
	b, err := generatePassword(16)
	require.NoError(t, err)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}
