package discord

import (
	"strconv"
	"strings"

	"questbot.io/questbot/internal/leveling"
	"questbot.io/questbot/pkg/common"
	"questbot.io/questbot/pkg/errors"
)

// usageError is answered with the command's usage hint instead of being logged.
type usageError struct {
	reason string
}

func (e *usageError) Error() string {
	return e.reason
}

func badUsage(reason string) error {
	return &usageError{reason: reason}
}

func isUsageError(err error) bool {
	var u *usageError
	return errors.As(err, &u)
}

// splitCommand separates "<prefix>name rest..." into the lower-cased name and the rest.
func splitCommand(content, prefix string) (name, rest string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	body := strings.TrimSpace(content[len(prefix):])
	if body == "" {
		return "", "", false
	}
	fields := strings.SplitN(body, " ", 2)
	name = strings.ToLower(fields[0])
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	return name, rest, true
}

// unwrapMention strips "<@...>" style wrapping, returning the inner id.
func unwrapMention(s, open string) (string, bool) {
	if !strings.HasPrefix(s, open) || !strings.HasSuffix(s, ">") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(s, open), ">")
	return id, common.IsSnowflake(id)
}

// parseUserRef accepts <@id>, <@!id> or a bare id.
func parseUserRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if id, ok := unwrapMention(s, "<@!"); ok {
		return id, true
	}
	if id, ok := unwrapMention(s, "<@"); ok {
		return id, true
	}
	return s, common.IsSnowflake(s)
}

// parseRoleRef resolves <@&id>, a bare id or a case-insensitive role name.
func parseRoleRef(s string, roles []*leveling.Role) (*leveling.Role, bool) {
	s = strings.TrimSpace(s)
	id, ok := unwrapMention(s, "<@&")
	if !ok {
		id = s
	}
	for _, r := range roles {
		if r.ID == id {
			return r, true
		}
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, s) {
			return r, true
		}
	}
	return nil, false
}

// channelRef is a channel candidate for name lookups.
type channelRef struct {
	ID   string
	Name string
}

// parseChannelRef resolves <#id>, a bare id or a channel name with or without '#'.
func parseChannelRef(s string, channels []channelRef) (channelRef, bool) {
	s = strings.TrimSpace(s)
	id, ok := unwrapMention(s, "<#")
	if !ok {
		id = s
	}
	for _, c := range channels {
		if c.ID == id {
			return c, true
		}
	}
	name := strings.TrimPrefix(s, "#")
	for _, c := range channels {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return channelRef{}, false
}

// parseAmount reads a non-negative integer, allowing thousands separators.
func parseAmount(s string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseMemberAmount reads "<member> <amount>" in either order.
func parseMemberAmount(rest string) (memberID string, amount int, err error) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "", 0, badUsage("expected a member and an amount")
	}
	for _, order := range [][2]int{{0, 1}, {1, 0}} {
		id, okUser := parseUserRef(fields[order[0]])
		n, okAmount := parseAmount(fields[order[1]])
		if okUser && okAmount && !strings.HasPrefix(fields[order[1]], "<") {
			return id, n, nil
		}
	}
	return "", 0, badUsage("could not read the member or the amount")
}

// parseQuestArgs reads "<title> | <body> [xp]". A trailing number on the body is the reward.
func parseQuestArgs(rest string) (title, body string, exp *int, err error) {
	parts := strings.SplitN(rest, "|", 2)
	title = strings.TrimSpace(parts[0])
	if title == "" {
		return "", "", nil, badUsage("a quest needs a title")
	}
	if len(parts) == 1 {
		return title, "", nil, nil
	}
	body = strings.TrimSpace(parts[1])
	if i := strings.LastIndexAny(body, " \n"); i >= 0 {
		if n, ok := parseAmount(body[i+1:]); ok {
			return title, strings.TrimSpace(body[:i]), &n, nil
		}
	} else if n, ok := parseAmount(body); ok {
		return title, "", &n, nil
	}
	return title, body, nil, nil
}

// parseRoleAssignment reads "<role> <xp> <badge|streak>"; the role may contain spaces.
func parseRoleAssignment(rest string) (roleRef string, exp int, kind string, err error) {
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return "", 0, "", badUsage("expected a role, an amount and a kind")
	}
	kind = strings.ToLower(fields[len(fields)-1])
	if kind != "badge" && kind != "streak" {
		return "", 0, "", badUsage("kind must be badge or streak")
	}
	exp, ok := parseAmount(fields[len(fields)-2])
	if !ok || exp == 0 {
		return "", 0, "", badUsage("xp must be a positive number")
	}
	return strings.Join(fields[:len(fields)-2], " "), exp, kind, nil
}

// parseBulkAssignment reads "<xp> <role> [role...]".
func parseBulkAssignment(rest string) (exp int, roleRefs []string, err error) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return 0, nil, badUsage("expected an amount and at least one role")
	}
	exp, ok := parseAmount(fields[0])
	if !ok || exp == 0 {
		return 0, nil, badUsage("xp must be a positive number")
	}
	return exp, fields[1:], nil
}
