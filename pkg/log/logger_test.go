package log

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestEntryRenderSortsFields(t *testing.T) {
	t.Parallel()
	e := WithFields(Fields{"member": "42", "guild": "7"})
	assert.Equal(t, "level changed guild=7 member=42", e.render("level changed"))
	assert.Equal(t, "plain", WithFields(nil).render("plain"))
}

func TestSetLevelName(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		"WARN":    logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for name, want := range cases {
		SetLevelName(name)
		assert.Equal(t, want, logger.Level, name)
	}
	SetLevelName("info")
}
