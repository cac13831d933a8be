package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DISCORD_TOKEN", "")
	conf, err := Parse([]byte("discord_bot:\n  auth_token: secret\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds, conf.Leveling.Thresholds)
	assert.Equal(t, "-", conf.DiscordBot.CommandPrefix)
	assert.Equal(t, 3000, conf.HTTP.Port)
	assert.Equal(t, 50, conf.Leveling.DefaultQuestExp)
	assert.Equal(t, 10000, conf.Leveling.MaxQuestExp)
	assert.Equal(t, 5, conf.Leveling.BadgeNameExp)
	assert.Equal(t, 30*time.Second, conf.Leveling.ConfirmTimeout)
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("DISCORD_TOKEN", "from-env")
	conf, err := Parse([]byte("http:\n  port: 3000\n"))
	require.NoError(t, err)
	assert.Equal(t, 8081, conf.HTTP.Port)
	assert.Equal(t, "from-env", conf.DiscordBot.AuthToken)
}

func TestValidateThresholds(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	cases := []struct {
		name string
		yaml string
		err  string
	}{
		{"too short", "leveling:\n  thresholds: [0, 100]\n", "want 10 entries"},
		{"bad start", "leveling:\n  thresholds: [1, 100, 500, 1200, 2200, 3500, 5100, 7000, 9200, 11700]\n", "must start at 0"},
		{"not ascending", "leveling:\n  thresholds: [0, 100, 100, 1200, 2200, 3500, 5100, 7000, 9200, 11700]\n", "not strictly ascending at level 3"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte("discord_bot:\n  auth_token: x\n" + tc.yaml))
		require.Error(t, err, tc.name)
		assert.Contains(t, err.Error(), tc.err, tc.name)
	}
}

func TestValidateRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := Parse([]byte("log_level: debug\n"))
	require.Error(t, err)

	conf, err := Parse([]byte("discord_bot:\n  token_parameter: /questbot/token\n"))
	require.NoError(t, err)
	assert.Equal(t, "/questbot/token", conf.DiscordBot.TokenParameter)
}

func TestLoadExampleFile(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "x")
	t.Setenv("PORT", "")
	conf, err := Load("config.example.yml")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, conf.Leveling.GuildConfigTTL)
	assert.False(t, conf.Aws.Enabled())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
