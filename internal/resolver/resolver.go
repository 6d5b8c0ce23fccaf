package resolver

import (
	"strings"

	"github.com/ralt/publishkit/internal/models"
	"github.com/sirupsen/logrus"
)

// TargetResolver decides where a build publishes to
type TargetResolver interface {
	// Resolve computes the publish target for a version in the given mode
	Resolve(version string, mode models.Mode) (*models.PublishTarget, error)
}

// Resolver implements TargetResolver from a fixed configuration.
// It performs no I/O.
type Resolver struct {
	config models.ResolverConfig
}

// New creates a resolver for the given configuration
func New(config models.ResolverConfig) *Resolver {
	return &Resolver{config: config}
}

// Resolve parses the version, picks the repository and attaches credentials.
func (r *Resolver) Resolve(version string, mode models.Mode) (*models.PublishTarget, error) {
	v, err := models.ParseVersion(version)
	if err != nil {
		return nil, err
	}

	if mode != models.ModeSimple && mode != models.ModeFull {
		return nil, models.NewError(models.ErrInvalidConfig, mode.String(), "unsupported publish mode")
	}

	creds, err := r.credentials()
	if err != nil {
		return nil, err
	}

	target := &models.PublishTarget{
		Credentials: creds,
		Version:     v.Raw,
		Status:      v.Status,
		Mode:        mode.String(),
	}

	var repo models.RepositoryConfig
	switch {
	case v.IsSnapshot():
		target.Kind = models.RepositorySnapshot
		repo = r.config.Snapshot
	case mode == models.ModeSimple:
		target.Kind = models.RepositoryRelease
		repo = r.config.Release
	default:
		target.Kind = models.RepositoryStaging
		repo = r.config.Staging
		target.PromotionRequired = true
		target.PromotionRepositoryID = r.config.Release.ID
	}

	if err := checkRepository(target.Kind, repo); err != nil {
		return nil, err
	}
	target.RepositoryID = repo.ID
	target.BaseURL = repo.URL

	logrus.WithFields(logrus.Fields{
		"version":    v.Raw,
		"status":     v.Status,
		"mode":       mode,
		"repository": repo.ID,
		"promotion":  target.PromotionRequired,
	}).Debug("Resolved publish target")

	return target, nil
}

// credentials rejects blank user or key, naming every blank source
func (r *Resolver) credentials() (models.CredentialSet, error) {
	creds := r.config.Credentials

	var missing []string
	if strings.TrimSpace(creds.User) == "" {
		missing = append(missing, sourceName(r.config.UserSource, "user"))
	}
	if strings.TrimSpace(creds.Key) == "" {
		missing = append(missing, sourceName(r.config.KeySource, "key"))
	}
	if len(missing) > 0 {
		return models.CredentialSet{}, models.NewError(models.ErrMissingCredentials,
			strings.Join(missing, ", "), "credential value is blank")
	}

	return creds, nil
}

func checkRepository(kind models.RepositoryKind, repo models.RepositoryConfig) error {
	if strings.TrimSpace(repo.ID) == "" || strings.TrimSpace(repo.URL) == "" {
		return models.NewError(models.ErrInvalidConfig, string(kind),
			"%s repository needs both id and url", kind)
	}
	return nil
}

func sourceName(source, fallback string) string {
	if source != "" {
		return source
	}
	return fallback
}
