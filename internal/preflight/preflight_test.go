package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelpipe/internal/queue"
	"reelpipe/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckTelegram_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botgood-token/getMe" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckTelegram(context.Background(), srv.URL, "good-token")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckTelegram_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckTelegram(context.Background(), srv.URL, "bad-token")
	if result.Passed {
		t.Fatal("expected failure for bad token")
	}
	if strings.Contains(result.Detail, "bad-token") {
		t.Fatalf("token leaked into detail: %s", result.Detail)
	}
}

func TestCheckTelegram_MissingValues(t *testing.T) {
	if CheckTelegram(context.Background(), "", "token").Passed {
		t.Fatal("expected failure for missing URL")
	}
	if CheckTelegram(context.Background(), "http://localhost", "").Passed {
		t.Fatal("expected failure for missing token")
	}
}

func TestCheckNtfy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"healthy":true}`))
	}))
	defer srv.Close()

	if result := CheckNtfy(context.Background(), srv.URL+"/reelpipe"); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckNtfy(context.Background(), "not a url"); result.Passed {
		t.Fatal("expected failure for invalid topic url")
	}
}

func TestCheckDatabase(t *testing.T) {
	healthy := queue.DatabaseHealth{
		DBPath:         "/data/reelpipe.db",
		DatabaseExists: true,
		TableExists:    true,
		IntegrityCheck: true,
		SchemaVersion:  1,
		TotalItems:     3,
	}
	if result := CheckDatabase(healthy); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	broken := healthy
	broken.MissingColumns = []string{"fingerprint"}
	result := CheckDatabase(broken)
	if result.Passed || !strings.Contains(result.Detail, "fingerprint") {
		t.Fatalf("expected missing column failure, got: %+v", result)
	}
}

func TestCheckSystemDepsReportsStubbedFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	statuses := CheckSystemDeps(context.Background(), cfg)
	if len(statuses) != 1 || !statuses[0].Available {
		t.Fatalf("expected available ffmpeg, got %+v", statuses)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 directory results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesTelegramWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.TelegramAPIURL = srv.URL
	cfg.Notifications.TelegramToken = "token"
	cfg.Notifications.TelegramChatID = "42"

	found := false
	for _, r := range RunAll(context.Background(), cfg) {
		if r.Name == "Telegram" {
			found = true
			if !r.Passed {
				t.Errorf("Telegram check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected Telegram check in results")
	}
}

func TestFromConfigReportsDisabledChannels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if r := CheckTelegramFromConfig(context.Background(), cfg); !r.Passed || r.Detail != "Disabled" {
		t.Fatalf("unexpected telegram result %+v", r)
	}
	if r := CheckNtfyFromConfig(context.Background(), cfg); !r.Passed || r.Detail != "Disabled" {
		t.Fatalf("unexpected ntfy result %+v", r)
	}
	cfg.Notifications.TelegramToken = "token"
	if r := CheckTelegramFromConfig(context.Background(), cfg); r.Passed {
		t.Fatal("expected failure when chat id is missing")
	}
}
