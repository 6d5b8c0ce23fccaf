package models

import "fmt"

// Coordinates identify a dependency artifact
type Coordinates struct {
	Group   string `json:"group" yaml:"group"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// Key returns group:name:version
func (c Coordinates) Key() string {
	return fmt.Sprintf("%s:%s:%s", c.Group, c.Name, c.Version)
}

// String returns the coordinate key
func (c Coordinates) String() string {
	return c.Key()
}

// Less orders coordinates by group, then name, then version
func (c Coordinates) Less(o Coordinates) bool {
	if c.Group != o.Group {
		return c.Group < o.Group
	}
	if c.Name != o.Name {
		return c.Name < o.Name
	}
	return c.Version < o.Version
}

// DependencyArtifact is one resolved dependency of the project
type DependencyArtifact struct {
	Coordinates
	Path     string
	Licenses []string
}

// ManifestEntry describes one dependency inside an escrow package
type ManifestEntry struct {
	Group       string   `json:"group"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Licenses    []string `json:"licenses"`
	Type        string   `json:"type"`
	ArchivePath string   `json:"path"`
	Size        int64    `json:"size"`
	SHA256      string   `json:"sha256"`
}

// Coordinates returns the entry's coordinates
func (e ManifestEntry) Coordinates() Coordinates {
	return Coordinates{Group: e.Group, Name: e.Name, Version: e.Version}
}

// ProjectInfo names the project an escrow package belongs to
type ProjectInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// SourceInfo summarizes the project source bundle
type SourceInfo struct {
	Root   string `json:"root"`
	Files  int    `json:"files"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// EscrowManifest is the machine-readable listing embedded in every package
type EscrowManifest struct {
	Schema       int             `json:"schema"`
	Project      ProjectInfo     `json:"project"`
	Source       SourceInfo      `json:"source"`
	Dependencies []ManifestEntry `json:"dependencies"`
}

// EscrowPackage is a finished archive on disk
type EscrowPackage struct {
	Path        string
	Fingerprint string
	Size        int64
	Compression string
	Manifest    EscrowManifest
}
