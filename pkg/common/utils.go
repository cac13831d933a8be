package common

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// discordEpoch is the first millisecond of 2015, the epoch of Discord snowflake ids.
const discordEpoch int64 = 1420070400000

func init() {
	snowflake.Epoch = discordEpoch
}

//NewCutUUIDString returns uuid string that cut `-`.
func NewCutUUIDString() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// DecodeTimeInSnowflake returns the creation time embedded in a Discord id, nil if id is not a snowflake.
func DecodeTimeInSnowflake(id string) *time.Time {
	sid, err := snowflake.ParseString(id)
	if err != nil || sid <= 0 {
		return nil
	}
	t := time.UnixMilli(sid.Time()).UTC()
	return &t
}

// IsSnowflake reports whether s looks like a Discord id.
func IsSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 21 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func MustGetJSONString(m interface{}) string {
	if m == nil {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.Error(err)
		return "{}"
	}
	return string(data)
}

// Truncate cuts s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max == 1 {
		return string(runes[:1])
	}
	return string(runes[:max-1]) + "…"
}
