package simplecms

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionStatus is the lifecycle state shared by versions and language records.
type VersionStatus int

// Version status constants. The numeric values are persisted.
const (
	StatusNotCreated VersionStatus = iota
	StatusRejected
	StatusCheckedOut
	StatusCheckedIn
	StatusPublished
	StatusPreviouslyPublished
	StatusDelayedPublish
	StatusAwaitingApproval
)

var statusNames = map[VersionStatus]string{
	StatusNotCreated:          "NotCreated",
	StatusRejected:            "Rejected",
	StatusCheckedOut:          "CheckedOut",
	StatusCheckedIn:           "CheckedIn",
	StatusPublished:           "Published",
	StatusPreviouslyPublished: "PreviouslyPublished",
	StatusDelayedPublish:      "DelayedPublish",
	StatusAwaitingApproval:    "AwaitingApproval",
}

func (s VersionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "VersionStatus(" + strconv.Itoa(int(s)) + ")"
}

// IsValid reports whether s is a known status.
func (s VersionStatus) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsDraftVersion is true for every state that is not live or superseded history.
func IsDraftVersion(s VersionStatus) bool {
	return s != StatusPublished && s != StatusPreviouslyPublished
}

// ParseVersionStatus accepts a status name (case-insensitive) or its number.
func ParseVersionStatus(s string) (VersionStatus, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		status := VersionStatus(n)
		if !status.IsValid() {
			return 0, fmt.Errorf("%w: unknown status %d", ErrValidation, n)
		}
		return status, nil
	}
	for status, name := range statusNames {
		if strings.EqualFold(name, s) {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// ParseVersionStatuses parses a comma separated status list. An empty
// string yields nil.
func ParseVersionStatuses(s string) ([]VersionStatus, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []VersionStatus
	for _, part := range strings.Split(s, ",") {
		status, err := ParseVersionStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}
