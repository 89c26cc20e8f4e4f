package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blockscope/blockscope/internal/api"
	"github.com/blockscope/blockscope/internal/workspace"
)

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("BLOCKSCOPE_PROJECT", "/srv/project")
	t.Setenv("BLOCKSCOPE_PORT", "7700")
	t.Setenv("BLOCKSCOPE_TOKEN", "")
	t.Setenv("BLOCKSCOPE_HOST", "")

	s := loadSettings()
	if s.Path != "/srv/project" || s.Port != 7700 {
		t.Errorf("settings = %+v", s)
	}
	if s.Host != "127.0.0.1" {
		t.Errorf("default host = %q", s.Host)
	}
	if s.LogFormat != "json" {
		t.Errorf("default log format = %q", s.LogFormat)
	}
}

func TestNewToken(t *testing.T) {
	a, err := newToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := newToken()
	if len(a) != 32 || a == b {
		t.Errorf("tokens %q, %q", a, b)
	}
}

func TestServeUntilShutdownRequest(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(workspace.DatabaseURLEnv, "")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.py"), []byte("def f():\n    pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- serve(context.Background(), settings{Path: dir, Host: "127.0.0.1", LogLevel: "quiet", LogFormat: "text"}, pw)
		pw.Close()
	}()

	var ann announcement
	if err := json.NewDecoder(pr).Decode(&ann); err != nil {
		t.Fatalf("read announcement: %v", err)
	}
	go io.Copy(io.Discard, pr)
	if ann.Token == "" || ann.URL == "" {
		t.Fatalf("announcement = %+v", ann)
	}

	resp, err := http.Get(ann.URL + "/api/tree")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("tree without token = %d, want 403", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ann.URL+"/shutdown", nil)
	req.Header.Set(api.TokenHeader, ann.Token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("shutdown = %d", resp.StatusCode)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after shutdown request")
	}
}
