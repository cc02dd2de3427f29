package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ticket-lifecycle/internal/auth"
)

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	cmd := newTokenCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--id", "org-7", "--role", "organizer", "--ttl", "1h"})
	require.NoError(t, cmd.Execute())

	id, err := auth.NewHMACVerifier([]byte("cli-secret")).Verify(context.Background(), strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "org-7", id.ID)
	assert.Equal(t, auth.RoleOrganizer, id.Role)
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	cmd := newTokenCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--id", "u1", "--role", "admin"})
	assert.Error(t, cmd.Execute())
}

func TestMigrateRequiresPostgres(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")

	cmd := newMigrateCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"status"})
	assert.ErrorContains(t, cmd.Execute(), "migrations target postgres")
}
