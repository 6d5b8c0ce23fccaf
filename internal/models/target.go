package models

import (
	"fmt"
	"strings"
)

// Mode selects between single repository publishing and the staged workflow
type Mode int

const (
	ModeSimple Mode = iota
	ModeFull
)

// String returns the string representation of Mode
func (m Mode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseMode converts a flag or config value into a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return ModeSimple, nil
	case "full":
		return ModeFull, nil
	default:
		return ModeSimple, NewError(ErrInvalidConfig, s, "mode must be simple or full")
	}
}

// RepositoryKind identifies which configured repository a target points at
type RepositoryKind string

const (
	RepositorySnapshot RepositoryKind = "snapshot"
	RepositoryStaging  RepositoryKind = "staging"
	RepositoryRelease  RepositoryKind = "release"
)

// CredentialSet holds the user/key pair used for uploads
type CredentialSet struct {
	User string `json:"user" yaml:"user"`
	Key  string `json:"-" yaml:"-"`
}

// String hides the key
func (c CredentialSet) String() string {
	if c.Key == "" {
		return fmt.Sprintf("%s:<none>", c.User)
	}
	return fmt.Sprintf("%s:****", c.User)
}

// RepositoryConfig describes one artifact repository
type RepositoryConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// ResolverConfig is everything the resolver needs to make a decision.
// UserSource and KeySource name where the credentials came from and only
// appear in error messages.
type ResolverConfig struct {
	Snapshot RepositoryConfig
	Staging  RepositoryConfig
	Release  RepositoryConfig

	Credentials CredentialSet
	UserSource  string
	KeySource   string
}

// PublishTarget is the resolved destination for one build
type PublishTarget struct {
	Kind                  RepositoryKind `json:"kind" yaml:"kind"`
	RepositoryID          string         `json:"repositoryId" yaml:"repositoryId"`
	BaseURL               string         `json:"baseUrl" yaml:"baseUrl"`
	Credentials           CredentialSet  `json:"credentials" yaml:"credentials"`
	PromotionRequired     bool           `json:"promotionRequired" yaml:"promotionRequired"`
	PromotionRepositoryID string         `json:"promotionRepositoryId,omitempty" yaml:"promotionRepositoryId,omitempty"`
	Version               string         `json:"version" yaml:"version"`
	Status                Status         `json:"status" yaml:"status"`
	Mode                  string         `json:"mode" yaml:"mode"`
}
