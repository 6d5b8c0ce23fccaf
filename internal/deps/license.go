package deps

import (
	"archive/zip"
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/scanner"
	"github.com/sassoftware/go-rpmutils"
	"github.com/sirupsen/logrus"
)

// DiscoverLicenses fills in licenses for artifacts that declare none, reading
// them from package metadata where the artifact format carries it. Artifacts
// that already declare licenses, or whose files cannot be read, are left as
// they are; the escrow builder reports those.
func DiscoverLicenses(artifacts []models.DependencyArtifact) []models.DependencyArtifact {
	result := make([]models.DependencyArtifact, len(artifacts))
	copy(result, artifacts)

	for i := range result {
		a := &result[i]
		if len(a.Licenses) > 0 || a.Path == "" {
			continue
		}

		artifactType, err := scanner.DetectArtifactType(a.Path)
		if err != nil {
			continue
		}

		var found []string
		switch artifactType {
		case scanner.TypeRpm:
			found, err = rpmLicenses(a.Path)
		case scanner.TypeJar:
			found, err = jarLicenses(a.Path)
		default:
			continue
		}
		if err != nil {
			logrus.Debugf("License discovery failed for %s: %v", a.Key(), err)
			continue
		}
		if len(found) > 0 {
			logrus.Debugf("Discovered licenses %v for %s", found, a.Key())
			a.Licenses = found
		}
	}

	return result
}

// rpmLicenses reads the License header tag
func rpmLicenses(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hdr, err := rpmutils.ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read RPM header: %w", err)
	}

	license, err := hdr.GetString(rpmutils.LICENSE)
	if err != nil {
		return nil, err
	}
	return splitLicenseExpression(license), nil
}

// jarLicenses reads Bundle-License from META-INF/MANIFEST.MF
func jarLicenses(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "META-INF/MANIFEST.MF" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		value := manifestAttribute(bufio.NewScanner(rc), "Bundle-License")
		if value == "" {
			return nil, nil
		}
		// Bundle-License may list several licenses, each optionally followed
		// by ;description=... or ;link=...
		var out []string
		for _, part := range strings.Split(value, ",") {
			name := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
			if name != "" {
				out = append(out, name)
			}
		}
		return out, nil
	}
	return nil, nil
}

// manifestAttribute returns a main section attribute, joining continuation
// lines (lines starting with a single space)
func manifestAttribute(s *bufio.Scanner, name string) string {
	var value string
	capturing := false
	prefix := strings.ToLower(name) + ":"

	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if capturing {
			if strings.HasPrefix(line, " ") {
				value += line[1:]
				continue
			}
			break
		}
		if line == "" {
			// End of the main section
			break
		}
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			value = strings.TrimSpace(line[len(prefix):])
			capturing = true
		}
	}
	return strings.TrimSpace(value)
}

// splitLicenseExpression turns "MIT and ASL 2.0" or "GPLv2+ or LGPLv3" into
// individual identifiers
func splitLicenseExpression(expr string) []string {
	expr = strings.NewReplacer("(", " ", ")", " ").Replace(expr)
	var out []string
	seen := make(map[string]bool)
	for _, field := range strings.FieldsFunc(expr, func(r rune) bool { return r == '\n' }) {
		for _, part := range splitWords(field, " and ", " or ", " AND ", " OR ") {
			part = strings.TrimSpace(part)
			if part != "" && !seen[part] {
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	return out
}

func splitWords(s string, seps ...string) []string {
	parts := []string{s}
	for _, sep := range seps {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}
	return parts
}
