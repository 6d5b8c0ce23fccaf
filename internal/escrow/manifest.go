package escrow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ralt/publishkit/internal/models"
)

// ManifestSchema is bumped whenever the manifest layout changes
const ManifestSchema = 1

const (
	manifestName    = "escrow-manifest.json"
	attributionName = "ATTRIBUTION.txt"
	sourcePrefix    = "source/"
	dependencyDir   = "dependencies"
)

// NormalizeDependencies collapses duplicate coordinates and sorts the result
// by group, name and version. Licenses of duplicates are merged. When
// duplicates disagree on the file, the lexicographically smallest non-empty
// path is kept so that input order never influences the outcome.
func NormalizeDependencies(deps []models.DependencyArtifact) []models.DependencyArtifact {
	byKey := make(map[string]*models.DependencyArtifact, len(deps))
	licenses := make(map[string]map[string]bool, len(deps))

	for _, dep := range deps {
		key := dep.Key()
		cur, ok := byKey[key]
		if !ok {
			cp := dep
			cp.Licenses = nil
			byKey[key] = &cp
			licenses[key] = make(map[string]bool)
			cur = &cp
		} else if dep.Path != "" && (cur.Path == "" || dep.Path < cur.Path) {
			cur.Path = dep.Path
		}

		for _, l := range dep.Licenses {
			if l = strings.TrimSpace(l); l != "" {
				licenses[key][l] = true
			}
		}
	}

	result := make([]models.DependencyArtifact, 0, len(byKey))
	for key, dep := range byKey {
		for l := range licenses[key] {
			dep.Licenses = append(dep.Licenses, l)
		}
		sort.Strings(dep.Licenses)
		result = append(result, *dep)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Coordinates.Less(result[j].Coordinates)
	})
	return result
}

// archivePathFor places a dependency under dependencies/<group>/<name>/<version>/
func archivePathFor(dep models.DependencyArtifact) string {
	return path.Join(dependencyDir,
		sanitizeSegment(dep.Group),
		sanitizeSegment(dep.Name),
		sanitizeSegment(dep.Version),
		sanitizeSegment(filepath.Base(dep.Path)))
}

// sanitizeSegment keeps a coordinate usable as a single archive path element
func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// renderManifest serializes the manifest. encoding/json emits struct fields
// in declaration order, so the bytes only depend on the manifest contents.
func renderManifest(m models.EscrowManifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// renderAttribution produces the human readable license listing
func renderAttribution(m models.EscrowManifest) []byte {
	var buf bytes.Buffer

	title := "Escrow package"
	if m.Project.Name != "" {
		title = fmt.Sprintf("Escrow package for %s %s", m.Project.Name, m.Project.Version)
	}
	fmt.Fprintf(&buf, "%s\n", strings.TrimSpace(title))
	fmt.Fprintf(&buf, "%s\n\n", strings.Repeat("=", len(strings.TrimSpace(title))))
	fmt.Fprintf(&buf, "Source: %d files, sha256 %s\n\n", m.Source.Files, m.Source.SHA256)

	if len(m.Dependencies) == 0 {
		buf.WriteString("No third-party dependencies.\n")
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Third-party dependencies (%d):\n\n", len(m.Dependencies))
	for _, e := range m.Dependencies {
		licenses := strings.Join(e.Licenses, ", ")
		if licenses == "" {
			licenses = "UNLICENSED (allow-listed)"
		}
		fmt.Fprintf(&buf, "%s\n    License: %s\n    File:    %s\n", e.Coordinates().Key(), licenses, e.ArchivePath)
	}

	return buf.Bytes()
}
