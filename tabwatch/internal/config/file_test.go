package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(write(t, `
pages:
  - url: https://example.com/form
  - id: docs
    url: https://example.com/docs
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Mode != "headless" {
		t.Errorf("Mode: got %q", cfg.Browser.Mode)
	}
	if cfg.Browser.RecycleInterval != 4*time.Hour {
		t.Errorf("RecycleInterval: got %v", cfg.Browser.RecycleInterval)
	}
	if cfg.AutosaveInterval != 30*time.Second {
		t.Errorf("AutosaveInterval: got %v", cfg.AutosaveInterval)
	}
	if cfg.DBPath != "domresume.db" {
		t.Errorf("DBPath: got %q", cfg.DBPath)
	}
	if cfg.Resume.Prefix != "domresume" {
		t.Errorf("Resume.Prefix: got %q", cfg.Resume.Prefix)
	}
	if cfg.Pages[0].ID != "page-1" || cfg.Pages[1].ID != "docs" {
		t.Errorf("page ids: %+v", cfg.Pages)
	}
}

func TestLoadFile_Full(t *testing.T) {
	cfg, err := LoadFile(write(t, `
browser:
  mode: headful
  remote: ws://127.0.0.1:9222
  resource_blocking: [images, fonts]
autosave_interval: 5s
resume_on_start: true
resume:
  prefix: app
  auto: true
  keep_falsy: true
components:
  menu: [open, level]
pages:
  - id: f
    url: https://example.com/
sinks:
  - type: stdout
  - type: webhook
    url: https://hooks.example.com/resume
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Browser.Mode != "headful" || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("browser: %+v", cfg.Browser)
	}
	if cfg.AutosaveInterval != 5*time.Second || !cfg.ResumeOnStart {
		t.Errorf("autosave/resume_on_start: %v %v", cfg.AutosaveInterval, cfg.ResumeOnStart)
	}
	if !cfg.Resume.Auto || !cfg.Resume.KeepFalsy || cfg.Resume.Prefix != "app" {
		t.Errorf("resume: %+v", cfg.Resume)
	}
	if len(cfg.Components["menu"]) != 2 {
		t.Errorf("components: %v", cfg.Components)
	}
	if len(cfg.Sinks) != 2 {
		t.Errorf("sinks: %v", cfg.Sinks)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	cases := map[string]string{
		"mode":           "browser:\n  mode: kiosk\n",
		"empty url":      "pages:\n  - id: a\n",
		"duplicate id":   "pages:\n  - {id: a, url: x}\n  - {id: a, url: y}\n",
		"webhook no url": "sinks:\n  - type: webhook\n",
		"unknown sink":   "sinks:\n  - type: nats\n",
		"resume rule":    "resume:\n  rules:\n    - properties: [value]\n",
	}
	for name, body := range cases {
		if _, err := LoadFile(write(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
