package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// KeyPrefix is shared by every record key.
const KeyPrefix = "expenses:"

var (
	ErrMissingNamespace  = errors.New("missing sync")
	ErrMissingWeekEnding = errors.New("missing weekEnding")
	ErrInvalidWeekEnding = errors.New("invalid weekEnding, want YYYY-MM-DD")
	weekEndingPattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// RecordKey is the storage key for one namespace and week.
func RecordKey(namespace, weekEnding string) string {
	return NamespacePrefix(namespace) + weekEnding
}

// NamespacePrefix is the key prefix shared by all weeks of a namespace.
func NamespacePrefix(namespace string) string {
	return KeyPrefix + namespace + ":"
}

// IsWeekEnding reports whether s has the YYYY-MM-DD shape used in keys.
// It deliberately checks the shape only, mirroring the listing filter.
func IsWeekEnding(s string) bool {
	return weekEndingPattern.MatchString(s)
}

// NormalizeNamespace trims the namespace and rejects blanks.
func NormalizeNamespace(namespace string) (string, error) {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return "", ErrMissingNamespace
	}
	return ns, nil
}

// NormalizeIdentity trims and validates both parts of a record identity.
func NormalizeIdentity(namespace, weekEnding string) (string, string, error) {
	ns, err := NormalizeNamespace(namespace)
	if err != nil {
		return "", "", err
	}
	we := strings.TrimSpace(weekEnding)
	if we == "" {
		return "", "", ErrMissingWeekEnding
	}
	if !IsWeekEnding(we) {
		return "", "", ErrInvalidWeekEnding
	}
	if _, err := time.Parse(DateLayout, we); err != nil {
		return "", "", ErrInvalidWeekEnding
	}
	return ns, we, nil
}

// SplitKey breaks a full key into namespace and week ending. ok is false for
// keys outside the two-part scheme, including legacy single-part keys.
func SplitKey(key string) (namespace, weekEnding string, ok bool) {
	rest, found := strings.CutPrefix(key, KeyPrefix)
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return "", "", false
	}
	namespace, weekEnding = rest[:i], rest[i+1:]
	if !IsWeekEnding(weekEnding) {
		return "", "", false
	}
	return namespace, weekEnding, true
}
