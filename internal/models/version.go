package models

import (
	"regexp"
	"strings"
)

// SnapshotSuffix marks a version as a snapshot build.
const SnapshotSuffix = "-SNAPSHOT"

// Status is the build status derived from a version string
type Status string

const (
	StatusRelease  Status = "release"
	StatusSnapshot Status = "snapshot"
)

// MAJOR.MINOR[.PATCH][-PRERELEASE][+BUILD]
var versionPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)(\.(0|[1-9][0-9]*))?(-[0-9A-Za-z][0-9A-Za-z.-]*)?(\+[0-9A-Za-z][0-9A-Za-z.-]*)?$`)

// Version is a parsed project version together with its status
type Version struct {
	Raw    string
	Status Status
}

// ParseVersion validates a version string and derives its status.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, NewError(ErrInvalidVersionFormat, s, "version is empty")
	}
	if !versionPattern.MatchString(raw) {
		return Version{}, NewError(ErrInvalidVersionFormat, s,
			"expected MAJOR.MINOR[.PATCH][-PRERELEASE][+BUILD]")
	}

	status := StatusRelease
	if strings.HasSuffix(raw, SnapshotSuffix) {
		status = StatusSnapshot
	}

	return Version{Raw: raw, Status: status}, nil
}

// IsSnapshot returns true for versions carrying the snapshot suffix
func (v Version) IsSnapshot() bool {
	return v.Status == StatusSnapshot
}

// String returns the version as given
func (v Version) String() string {
	return v.Raw
}
