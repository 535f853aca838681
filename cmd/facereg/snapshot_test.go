package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/facereg/internal/repository/snapshot"
)

func writeConfig(t *testing.T, dir, snapshotPath string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	body := fmt.Sprintf("http:\n  port: 8080\nregistry:\n  path: %s\n  compression: zstd\n", snapshotPath)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		configPath = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSnapshotStats(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "storage.json")

	data := snapshot.Data{
		"10.0.0.1": {"alice": {1, 0}, "bob": {0, 1}},
		"10.0.0.2": {"carol": {1, 1}},
	}
	if err := snapshot.NewFileStore(snapPath, snapshot.CompressionZstd).Save(context.Background(), data); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "--config", writeConfig(t, dir, snapPath), "snapshot", "stats")
	if err != nil {
		t.Fatalf("snapshot stats: %v", err)
	}
	if !strings.Contains(out, "Tenants:    2") || !strings.Contains(out, "Identities: 3") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSnapshotStats_Missing(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "--config", writeConfig(t, dir, filepath.Join(dir, "none.json")), "snapshot", "stats")
	if err != nil {
		t.Fatalf("snapshot stats: %v", err)
	}
	if !strings.Contains(out, "No snapshot yet") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "facereg dev") {
		t.Errorf("unexpected output: %q", out)
	}
}
