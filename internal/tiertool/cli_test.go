package tiertool

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prism/client/internal/quality"
)

func TestExecuteCheckRequiresTable(t *testing.T) {
	err := Execute(io.Discard, io.Discard, []string{"--check"})
	if err == nil || !strings.Contains(err.Error(), "--table") {
		t.Fatalf("expected missing table error, got %v", err)
	}
}

func TestExecuteRejectsUnknownFlag(t *testing.T) {
	if err := Execute(io.Discard, io.Discard, []string{"--bogus"}); err == nil {
		t.Fatal("expected unknown flag to fail")
	}
}

func TestExecuteWritesDefaultsThatValidate(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "config", "tiers.yaml")
	if err := Execute(io.Discard, io.Discard, []string{"--out=" + outputPath}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	table, err := quality.LoadSettingsTable(outputPath)
	if err != nil {
		t.Fatalf("expected written defaults to load: %v", err)
	}
	want := quality.DefaultSettingsTable()
	if table[quality.TierMedium].Textures.MaxSize != want[quality.TierMedium].Textures.MaxSize {
		t.Fatalf("expected medium texture ceiling to survive the round trip")
	}

	var stdout bytes.Buffer
	if err := Execute(&stdout, io.Discard, []string{"--table=" + outputPath, "--check"}); err != nil {
		t.Fatalf("check returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "ok (5 tiers)") {
		t.Fatalf("unexpected check output %q", stdout.String())
	}
}

func TestExecutePrintsSingleTier(t *testing.T) {
	var stdout bytes.Buffer
	if err := Execute(&stdout, io.Discard, []string{"--tier=MEDIUM"}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "medium:") || strings.Contains(out, "ultra:") {
		t.Fatalf("expected only the medium tier, got:\n%s", out)
	}
	if !strings.Contains(out, "loadDistance") {
		t.Fatalf("expected streaming settings in output, got:\n%s", out)
	}
}

func TestExecuteReportsInvalidTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	data := []byte("low:\n  hardwareScale: 0\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write table: %v", err)
	}
	err := Execute(io.Discard, io.Discard, []string{"--table=" + path, "--check"})
	if err == nil || !strings.Contains(err.Error(), "invalid tier table") {
		t.Fatalf("expected validation error, got %v", err)
	}
}
