package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSettingsIssueAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 1}

	key, err := us.IssueAPIKey()
	require.NoError(t, err)
	require.NotEmpty(t, key)

	assert.True(t, strings.HasPrefix(key, apiKeyPrefix))
	assert.NotEmpty(t, us.APIKeyHash)
	assert.True(t, strings.HasPrefix(key, us.APIKeyPrefix))
	assert.NotNil(t, us.APIKeyCreatedAt)
	assert.Nil(t, us.APIKeyLastUsedAt)
	assert.True(t, us.HasActiveAPIKey())
	assert.Equal(t, HashAPIKey(key), us.APIKeyHash)
}

func TestUserSettingsRevokeAPIKey(t *testing.T) {
	us := &UserSettings{UserID: 99}
	_, err := us.IssueAPIKey()
	require.NoError(t, err)

	us.RevokeAPIKey()

	assert.False(t, us.HasActiveAPIKey())
	assert.Equal(t, "", us.APIKeyHash)
	assert.Equal(t, "", us.APIKeyPrefix)
	assert.NotNil(t, us.APIKeyRevokedAt)
}

func TestHashAPIKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, HashAPIKey("rfx_abc"), HashAPIKey("  rfx_abc \n"))
	assert.Len(t, HashAPIKey("rfx_abc"), 64)
}

func TestUserSettingsRollUsagePeriod(t *testing.T) {
	oct := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	nov := time.Date(2026, 11, 1, 0, 0, 1, 0, time.UTC)

	us := &UserSettings{UsagePeriod: "2026-10", ReceiptsUsed: 7, ExportsUsed: 2}

	assert.False(t, us.RollUsagePeriod(oct))
	assert.Equal(t, 7, us.ReceiptsUsed)

	assert.True(t, us.RollUsagePeriod(nov))
	assert.Equal(t, "2026-11", us.UsagePeriod)
	assert.Zero(t, us.ReceiptsUsed)
	assert.Zero(t, us.ExportsUsed)
}
