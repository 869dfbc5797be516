package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/snatchshot/core/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "snatchshot.conf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const completeConfig = "GOOGLE_CLIENT_ID = abc123.apps.googleusercontent.com\n" +
	"DATABASE_API_BASE_URL = https://db.snatchshot.app/v1\n" +
	"WEBSOCKET_BASE_URL = wss://rt.snatchshot.app\n" +
	"APPSFLYER_DEV_KEY = af-dev-key\n" +
	"APPLE_APP_ID = 1234567890\n" +
	"MIXPANEL_TOKEN = mp-token\n"

func TestRunValidateOK(t *testing.T) {
	resolver := config.NewResolver(config.FileSource{Path: writeConfig(t, completeConfig)})

	var out bytes.Buffer
	if err := runValidate(resolver, &out); err != nil {
		t.Fatalf("runValidate returned error: %v", err)
	}
	if !strings.Contains(out.String(), "configuration ok") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunValidateReportsAllMissingKeys(t *testing.T) {
	resolver := config.NewResolver(config.FileSource{Path: writeConfig(t,
		"GOOGLE_CLIENT_ID = abc123\nDATABASE_API_BASE_URL = https://db.snatchshot.app\n")})

	var out bytes.Buffer
	err := runValidate(resolver, &out)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, key := range []string{"WEBSOCKET_BASE_URL", "APPSFLYER_DEV_KEY", "APPLE_APP_ID", "MIXPANEL_TOKEN"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error does not mention %s: %v", key, err)
		}
	}
}

func TestRunDumpRedactsSecrets(t *testing.T) {
	resolver := config.NewResolver(config.FileSource{Path: writeConfig(t, completeConfig)})

	var out bytes.Buffer
	if err := runDump(resolver, &out, "json", false); err != nil {
		t.Fatalf("runDump returned error: %v", err)
	}

	var reports []keyReport
	if err := json.Unmarshal(out.Bytes(), &reports); err != nil {
		t.Fatalf("decode dump output: %v", err)
	}

	byKey := make(map[string]keyReport, len(reports))
	for _, r := range reports {
		byKey[r.Key] = r
	}

	if byKey[config.KeyMixpanelToken].Value != "(redacted)" {
		t.Fatalf("expected redacted mixpanel token, got %q", byKey[config.KeyMixpanelToken].Value)
	}
	if byKey[config.KeyDatabaseAPIBaseURL].Value != "https://db.snatchshot.app/v1" {
		t.Fatalf("expected plain base url, got %q", byKey[config.KeyDatabaseAPIBaseURL].Value)
	}
	if byKey[config.KeyDatabaseAPITimeout].Value != "(missing)" {
		t.Fatalf("expected missing timeout marker, got %q", byKey[config.KeyDatabaseAPITimeout].Value)
	}
}

func TestRunDumpRevealShowsSecrets(t *testing.T) {
	resolver := config.NewResolver(config.FileSource{Path: writeConfig(t, completeConfig)})

	var out bytes.Buffer
	if err := runDump(resolver, &out, "yaml", true); err != nil {
		t.Fatalf("runDump returned error: %v", err)
	}
	if !strings.Contains(out.String(), "mp-token") {
		t.Fatalf("expected revealed secret in output:\n%s", out.String())
	}
}

func TestRunDumpYAMLStreamIsComplete(t *testing.T) {
	resolver := config.NewResolver(config.FileSource{Path: writeConfig(t, completeConfig)})

	var out bytes.Buffer
	if err := runDump(resolver, &out, "yaml", false); err != nil {
		t.Fatalf("runDump returned error: %v", err)
	}

	// The emitted stream must be finished YAML that parses back whole.
	var reports []keyReport
	if err := yaml.Unmarshal(out.Bytes(), &reports); err != nil {
		t.Fatalf("dump output is not valid YAML: %v\n%s", err, out.String())
	}
	if len(reports) != len(config.MandatoryKeys())+1 {
		t.Fatalf("expected %d entries, got %d", len(config.MandatoryKeys())+1, len(reports))
	}
}
