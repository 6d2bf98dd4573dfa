package daemon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	. "sparkalyze/common"
	"sparkalyze/platform"
	"sparkalyze/store"
)

func TestMaskValue(t *testing.T) {
	if s := maskValue(""); s != "••••" {
		t.Fatalf("Empty: %s", s)
	}
	if s := maskValue("abcd"); s != "••••" {
		t.Fatalf("Short: %s", s)
	}
	if s := maskValue("abcdefgh"); s != "••••efgh" {
		t.Fatalf("Long: %s", s)
	}
	if s := maskValue("xy1234"); !strings.HasSuffix(s, "1234") || strings.Contains(s, "xy") {
		t.Fatalf("Suffix: %s", s)
	}
}

func TestBaseHost(t *testing.T) {
	if s := baseHost("https://eu1.example.com/v4"); s != "https://eu1.example.com" {
		t.Fatalf("v4 suffix: %s", s)
	}
	if s := baseHost("https://eu1.example.com/v4/"); s != "https://eu1.example.com" {
		t.Fatalf("v4 trailing slash: %s", s)
	}
	if s := baseHost("https://eu1.example.com"); s != "https://eu1.example.com" {
		t.Fatalf("No suffix: %s", s)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := &Config{DefaultLimit: 25, MatchWindowMinutes: 10}
	for _, key := range configurableKeys {
		if !configSet(cfg, key, configGet(cfg, key)) {
			t.Fatalf("Round trip failed for %s", key)
		}
	}
	if !configSet(cfg, "DEFAULT_LIMIT", "50") || cfg.DefaultLimit != 50 {
		t.Fatalf("DEFAULT_LIMIT: %d", cfg.DefaultLimit)
	}
	if configSet(cfg, "DEFAULT_LIMIT", "zero") {
		t.Fatal("Bad DEFAULT_LIMIT accepted")
	}
	if configSet(cfg, "NO_SUCH_KEY", "x") {
		t.Fatal("Unknown key accepted")
	}
	if !configSet(cfg, "ONPREM_ENABLED", "false") || cfg.OnpremEnabled {
		t.Fatal("ONPREM_ENABLED not cleared")
	}
	if !configSet(cfg, "ONPREM_ENABLED", "1") || !cfg.OnpremEnabled {
		t.Fatal("ONPREM_ENABLED not set")
	}
}

func TestUpdateConfigSkipsMasked(t *testing.T) {
	dc := new(DaemonCommand)
	dc.cfg = &Config{PlatformToken: "original-token", DefaultLimit: 25, MatchWindowMinutes: 10}

	in := new(updateConfigInput)
	in.Body = map[string]any{
		"PLATFORM_API_TOKEN":   "••••oken",
		"DATABRICKS_TOKEN":     "fresh-token",
		"DEFAULT_LIMIT":        float64(40),
		"MATCH_WINDOW_MINUTES": "not a number",
	}
	out, err := dc.updateConfig(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if dc.cfg.PlatformToken != "original-token" {
		t.Fatalf("Masked placeholder overwrote the token: %s", dc.cfg.PlatformToken)
	}
	if dc.cfg.DatabricksToken != "fresh-token" {
		t.Fatalf("Token not updated: %s", dc.cfg.DatabricksToken)
	}
	if dc.cfg.DefaultLimit != 40 {
		t.Fatalf("Limit not updated: %d", dc.cfg.DefaultLimit)
	}
	if dc.cfg.MatchWindowMinutes != 10 {
		t.Fatalf("Bad window value applied: %d", dc.cfg.MatchWindowMinutes)
	}
	if len(out.Body.Updated) != 2 ||
		out.Body.Updated[0] != "DATABRICKS_TOKEN" || out.Body.Updated[1] != "DEFAULT_LIMIT" {
		t.Fatalf("Updated keys: %v", out.Body.Updated)
	}
}

func TestDatabricksCachedDetails(t *testing.T) {
	dc := new(DaemonCommand)
	dc.cfg = &Config{}
	dc.store = store.NewFileStore(t.TempDir())

	// The cluster id is optional in run details, it must survive the cache as a pointer.
	clusterID := "0818-1234-abc"
	body := databricksBody{
		DatabricksJobID: "943293893227722",
		DatabricksHost:  "https://adb.example.net",
		RunDetails:      &platform.RunDetails{ClusterID: &clusterID},
		ClusterEvents:   []platform.ClusterEvent{},
	}
	encoded, err := json.Marshal(&body)
	if err != nil {
		t.Fatal(err)
	}
	if err := dc.store.SaveRunDetails("myflow", "77", encoded); err != nil {
		t.Fatal(err)
	}

	in := new(databricksInput)
	in.Body.DatabricksJobID = "943293893227722"
	in.Body.FlowName = "myflow"
	in.Body.JobRunID = 77
	out, err := dc.databricksDetails(in, false)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Body.Cached {
		t.Fatal("expected a cached response")
	}
	d := out.Body.RunDetails
	if d == nil || d.ClusterID == nil || *d.ClusterID != clusterID {
		t.Fatalf("cluster id mangled: %+v", d)
	}

	// Refresh clears the cache before re-fetching; with no Databricks config the
	// re-fetch fails, and the cached copy must be gone.
	if _, err := dc.databricksDetails(in, true); err == nil {
		t.Fatal("expected refresh to fail without Databricks config")
	}
	raw, err := dc.store.LoadRunDetails("myflow", "77")
	if err != nil {
		t.Fatal(err)
	}
	if raw != nil {
		t.Fatal("refresh did not clear the cache")
	}
}

func TestGetConfigMasksSecrets(t *testing.T) {
	dc := new(DaemonCommand)
	dc.cfg = &Config{
		PlatformBaseURL: "https://eu1.example.com/v4",
		PlatformToken:   "super-secret-token",
		DefaultLimit:    25,
	}
	out, err := dc.getConfig(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	v := out.Body["PLATFORM_API_TOKEN"]
	if !v.Masked || strings.Contains(v.Value, "secret") || !strings.HasSuffix(v.Value, "oken") {
		t.Fatalf("Token not masked: %+v", v)
	}
	u := out.Body["PLATFORM_API_BASE_URL"]
	if u.Masked || u.Value != "https://eu1.example.com/v4" {
		t.Fatalf("URL mangled: %+v", u)
	}
	if out.Body["DEFAULT_LIMIT"].Value != "25" {
		t.Fatalf("Limit: %+v", out.Body["DEFAULT_LIMIT"])
	}
}
