package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ralt/publishkit/internal/history"
	"github.com/ralt/publishkit/internal/models"
	"gopkg.in/yaml.v3"
)

const testConfig = `repositories:
  snapshot:
    id: shop-snapshots
    url: https://repo.example.com/snapshots
  staging:
    id: shop-staging
    url: https://repo.example.com/staging
  release:
    id: shop-releases
    url: https://repo.example.com/releases
credentials:
  user_env: SHOP_USER
  key_env: SHOP_KEY
`

func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "publishkit.yaml")
	if err := os.WriteFile(path, []byte(testConfig+extra), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCommandJSON(t *testing.T) {
	t.Setenv("SHOP_USER", "ci")
	t.Setenv("SHOP_KEY", "s3cret")
	cfg := writeTestConfig(t, "")

	out, err := execute(t, "resolve", "--config", cfg, "--mode", "full", "--format", "json", "3.1.0")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var target models.PublishTarget
	if err := json.Unmarshal([]byte(out), &target); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, out)
	}
	if target.Kind != models.RepositoryStaging || !target.PromotionRequired || target.PromotionRepositoryID != "shop-releases" {
		t.Errorf("Unexpected target: %+v", target)
	}
	if strings.Contains(out, "s3cret") {
		t.Errorf("Credential key leaked into output:\n%s", out)
	}
}

func TestResolveCommandSnapshotYAML(t *testing.T) {
	t.Setenv("SHOP_USER", "ci")
	t.Setenv("SHOP_KEY", "s3cret")
	cfg := writeTestConfig(t, "")

	out, err := execute(t, "resolve", "--config", cfg, "--format", "yaml", "3.1.0-SNAPSHOT")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var target map[string]interface{}
	if err := yaml.Unmarshal([]byte(out), &target); err != nil {
		t.Fatalf("Output is not YAML: %v\n%s", err, out)
	}
	if target["repositoryId"] != "shop-snapshots" {
		t.Errorf("Expected snapshot repository, got %v", target["repositoryId"])
	}
	if target["promotionRequired"] != false {
		t.Errorf("Snapshots never require promotion, got %v", target["promotionRequired"])
	}
}

func TestResolveCommandErrors(t *testing.T) {
	t.Setenv("SHOP_USER", "")
	t.Setenv("SHOP_KEY", "")
	cfg := writeTestConfig(t, "")

	_, err := execute(t, "resolve", "--config", cfg, "1.0.0")
	if !models.IsErrorType(err, models.ErrMissingCredentials) {
		t.Errorf("Expected MissingCredentials, got %v", err)
	}
	if subject := models.ErrorSubject(err); subject != "SHOP_USER, SHOP_KEY" {
		t.Errorf("Expected both sources named, got %q", subject)
	}

	_, err = execute(t, "resolve", "--config", cfg, "--mode", "staged", "1.0.0")
	if !models.IsErrorType(err, models.ErrInvalidConfig) {
		t.Errorf("Expected InvalidConfig for unknown mode, got %v", err)
	}

	t.Setenv("SHOP_USER", "ci")
	t.Setenv("SHOP_KEY", "s3cret")
	_, err = execute(t, "resolve", "--config", cfg, "--format", "xml", "1.0.0")
	if !models.IsErrorType(err, models.ErrInvalidConfig) {
		t.Errorf("Expected InvalidConfig for unknown format, got %v", err)
	}
}

func TestWriteTargetText(t *testing.T) {
	target := &models.PublishTarget{
		Kind:                  models.RepositoryStaging,
		RepositoryID:          "shop-staging",
		BaseURL:               "https://repo.example.com/staging",
		Credentials:           models.CredentialSet{User: "ci", Key: "s3cret"},
		PromotionRequired:     true,
		PromotionRepositoryID: "shop-releases",
		Version:               "2.0.0",
		Status:                models.StatusRelease,
		Mode:                  "full",
	}

	var buf bytes.Buffer
	if err := writeTarget(&buf, target, "text"); err != nil {
		t.Fatalf("writeTarget failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "(to shop-releases)") {
		t.Errorf("Expected promotion destination in output:\n%s", out)
	}
	if !strings.Contains(out, "ci:****") || strings.Contains(out, "s3cret") {
		t.Errorf("Expected redacted credentials:\n%s", out)
	}
}

// escrowFixture creates a small source tree, one dependency and a dependency
// list, returning the source dir and list path
func escrowFixture(t *testing.T, licenses string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	depsYAML := "dependencies:\n" +
		"  - {group: org.example, name: lib-a, version: \"1.0\", path: repo/lib-a-1.0.jar, licenses: " + licenses + "}\n"

	files := map[string]string{
		"src/README.md":      "shop\n",
		"repo/lib-a-1.0.jar": "lib-a contents",
		"deps.yaml":          depsYAML,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(path), 0755)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}

	return filepath.Join(dir, "src"), filepath.Join(dir, "deps.yaml")
}

func TestEscrowCommandRecordsHistory(t *testing.T) {
	src, depsFile := escrowFixture(t, "[MIT]")
	outDir := t.TempDir()
	dbPath := filepath.Join(outDir, "history.db")
	cfg := writeTestConfig(t, "history:\n  db_path: "+dbPath+"\n")
	output := filepath.Join(outDir, "shop.tar.zst")

	args := []string{"escrow", "--config", cfg, "--source", src, "--deps", depsFile,
		"--output", output, "--compression", "zstd", "--project", "shop", "--project-version", "1.0.0"}

	for i := 0; i < 2; i++ {
		if out, err := execute(t, args...); err != nil {
			t.Fatalf("escrow run %d failed: %v\n%s", i+1, err, out)
		}
	}

	sidecar, err := os.ReadFile(output + ".sha256")
	if err != nil {
		t.Fatalf("Expected checksum file: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(string(sidecar)), "  shop.tar.zst") {
		t.Errorf("Unexpected checksum file: %q", sidecar)
	}

	store, err := history.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open history: %v", err)
	}
	defer store.Close()

	records, err := store.List("shop", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected identical rebuild to be recorded once, got %d records", len(records))
	}
	if !strings.HasPrefix(string(sidecar), records[0].Fingerprint) {
		t.Errorf("History fingerprint %s does not match checksum file %q", records[0].Fingerprint, sidecar)
	}
	if records[0].Compression != "zstd" || records[0].DependencyCount != 1 {
		t.Errorf("Unexpected record: %+v", records[0])
	}

	out, err := execute(t, "history", "--db", dbPath)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, records[0].Fingerprint[:12]) {
		t.Errorf("Expected fingerprint in history listing:\n%s", out)
	}
}

func TestEscrowCommandHistoryInsideSource(t *testing.T) {
	src, depsFile := escrowFixture(t, "[MIT]")
	dbPath := filepath.Join(src, ".publishkit", "history.db")
	cfg := writeTestConfig(t, "history:\n  db_path: "+dbPath+"\n")
	output := filepath.Join(t.TempDir(), "shop.tar.gz")

	args := []string{"escrow", "--config", cfg, "--source", src, "--deps", depsFile,
		"--output", output, "--project", "shop", "--project-version", "1.0.0"}

	for i := 0; i < 3; i++ {
		if out, err := execute(t, args...); err != nil {
			t.Fatalf("escrow run %d failed: %v\n%s", i+1, err, out)
		}
	}

	store, err := history.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open history: %v", err)
	}
	defer store.Close()

	records, err := store.List("shop", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected the history database to stay out of the fingerprint, got %d records", len(records))
	}
}

func TestEscrowCommandMissingLicense(t *testing.T) {
	src, depsFile := escrowFixture(t, "[]")
	output := filepath.Join(t.TempDir(), "shop.tar.gz")
	cfg := writeTestConfig(t, "")

	_, err := execute(t, "escrow", "--config", cfg, "--source", src, "--deps", depsFile, "--output", output)
	if !models.IsErrorType(err, models.ErrMissingLicense) {
		t.Fatalf("Expected MissingLicense, got %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Errorf("Expected no archive after failure")
	}

	_, err = execute(t, "escrow", "--config", cfg, "--source", src, "--deps", depsFile,
		"--output", output, "--allow-unlicensed", "org.example:lib-a:1.0")
	if err != nil {
		t.Fatalf("Expected allow-listed build to succeed: %v", err)
	}
}

func TestVerifyCommand(t *testing.T) {
	src, depsFile := escrowFixture(t, "[Apache-2.0]")
	output := filepath.Join(t.TempDir(), "shop.tar.gz")
	cfg := writeTestConfig(t, "")

	if _, err := execute(t, "escrow", "--config", cfg, "--source", src, "--deps", depsFile, "--output", output); err != nil {
		t.Fatalf("escrow failed: %v", err)
	}

	out, err := execute(t, "verify", "--list", output)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !strings.Contains(out, "org.example:lib-a:1.0  Apache-2.0") {
		t.Errorf("Expected dependency listing:\n%s", out)
	}

	// Tampered checksum file
	if err := os.WriteFile(output+".sha256", []byte("deadbeef  shop.tar.gz\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = execute(t, "verify", output)
	if !models.IsErrorType(err, models.ErrEscrowIO) || !strings.Contains(err.Error(), "fingerprint mismatch") {
		t.Errorf("Expected fingerprint mismatch, got %v", err)
	}
}

func TestEscrowCommandSignsPackage(t *testing.T) {
	src, depsFile := escrowFixture(t, "[MIT]")
	dir := t.TempDir()
	output := filepath.Join(dir, "shop.tar.xz")
	cfg := writeTestConfig(t, "")

	entity, err := openpgp.NewEntity("Escrow Test", "", "escrow@example.com", nil)
	if err != nil {
		t.Fatalf("Failed to create entity: %v", err)
	}
	var priv bytes.Buffer
	w, err := armor.Encode(&priv, openpgp.PrivateKeyType, nil)
	if err != nil {
		t.Fatalf("Failed to create armor writer: %v", err)
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		t.Fatalf("Failed to serialize private key: %v", err)
	}
	w.Close()
	keyPath := filepath.Join(dir, "private.asc")
	if err := os.WriteFile(keyPath, priv.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	_, err = execute(t, "escrow", "--config", cfg, "--source", src, "--deps", depsFile,
		"--output", output, "--compression", "xz", "--gpg-key", keyPath)
	if err != nil {
		t.Fatalf("escrow failed: %v", err)
	}

	for _, suffix := range []string{".sha256", ".asc", ".pub.asc"} {
		if _, err := os.Stat(output + suffix); err != nil {
			t.Errorf("Expected %s next to the package: %v", suffix, err)
		}
	}

	if _, err := execute(t, "verify", "--public-key", output+".pub.asc", output); err != nil {
		t.Errorf("Expected signature to verify: %v", err)
	}
}
