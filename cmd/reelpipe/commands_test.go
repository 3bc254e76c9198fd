package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"reelpipe/internal/api"
	"reelpipe/internal/daemon"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/testsupport"
	"reelpipe/internal/workflow"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestTargetsLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"targets", "add", "@somecreator"}, env.configPath)
	if err != nil {
		t.Fatalf("targets add: %v", err)
	}
	requireContains(t, out, "somecreator")

	out, _, err = runCLI(t, []string{"targets", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("targets list: %v", err)
	}
	requireContains(t, out, "somecreator")
	requireContains(t, out, "never")

	if _, _, err := runCLI(t, []string{"targets", "remove", "somecreator"}, env.configPath); err != nil {
		t.Fatalf("targets remove: %v", err)
	}
	targets, err := env.store.ListTargets(context.Background(), true)
	if err != nil {
		t.Fatalf("ListTargets: %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("expected no active targets, got %+v", targets)
	}
	if _, _, err := runCLI(t, []string{"targets", "remove", "ghost"}, env.configPath); err == nil {
		t.Fatal("expected error removing unknown target")
	}
}

func TestItemsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	pending := testsupport.ItemAtStage(t, env.store, "creator:a.mp4", queue.StagePendingApproval)
	testsupport.NewItem(t, env.store, "creator:b.mp4")

	out, _, err := runCLI(t, []string{"items", "list", "--stage", "pending_approval", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("items list: %v", err)
	}
	var resp api.ItemListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != pending.ID {
		t.Fatalf("unexpected items %+v", resp.Items)
	}

	out, _, err = runCLI(t, []string{"items", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("items list: %v", err)
	}
	requireContains(t, out, "creator:b.mp4")

	out, _, err = runCLI(t, []string{"items", "show", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("items show: %v", err)
	}
	requireContains(t, out, "pending_approval")
	requireContains(t, out, "Approval")

	if _, _, err := runCLI(t, []string{"items", "list", "--stage", "bogus"}, env.configPath); err == nil {
		t.Fatal("expected unknown stage error")
	}
	if _, _, err := runCLI(t, []string{"items", "show", "999"}, env.configPath); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestApproveAndRejectAreOneShot(t *testing.T) {
	env := setupCLITestEnv(t)
	item := testsupport.ItemAtStage(t, env.store, "creator:a.mp4", queue.StagePendingApproval)

	out, _, err := runCLI(t, []string{"approve", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	requireContains(t, out, "approved by tester")

	reloaded, err := env.store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Stage != queue.StageApproved {
		t.Fatalf("expected approved stage, got %s", reloaded.Stage)
	}

	if _, _, err := runCLI(t, []string{"reject", "1", "--by", "bob"}, env.configPath); err == nil {
		t.Fatal("expected second decision to fail")
	}
	if _, _, err := runCLI(t, []string{"approve", "42"}, env.configPath); err == nil || !strings.Contains(err.Error(), "no approval request") {
		t.Fatalf("expected missing approval error, got %v", err)
	}
}

func TestStatsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.ItemAtStage(t, env.store, "creator:a.mp4", queue.StagePendingApproval)

	out, _, err := runCLI(t, []string{"stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats api.StatsResponse
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Stages[string(queue.StagePendingApproval)] != 1 || stats.Approvals[string(queue.DecisionPending)] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRunCommandExecutesLocally(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "acquire")
	requireContains(t, out, "publish")
	requireContains(t, out, "total")
}

func TestRunCommandRefusesWhileDaemonHoldsLock(t *testing.T) {
	env := setupCLITestEnv(t)

	lock := flock.New(env.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock() //nolint:errcheck

	_, _, err = runCLI(t, []string{"run"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "reelpipe trigger") {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath, "--api", "127.0.0.1:1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")
}

func TestStatusAndTriggerThroughDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	logger := logging.NewNop()
	mgr := workflow.NewManager(env.cfg, env.store, workflow.Collaborators{}, logger)
	d, err := daemon.New(env.cfg, env.store, logger, mgr, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	out, _, err := runCLI(t, []string{"status"}, env.configPath, "--api", d.APIAddress())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "FFmpeg")

	out, _, err = runCLI(t, []string{"trigger"}, env.configPath, "--api", d.APIAddress())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	requireContains(t, out, "started")
}

func TestCheckReportsHealthyEnvironment(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Inbox directory")
	requireContains(t, out, "Database")
	requireContains(t, out, "Disabled")
}

func TestTestNotifyWithoutChannels(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "No notification channel configured")
}

func TestLogsFiltersDaemonLog(t *testing.T) {
	env := setupCLITestEnv(t)

	content := strings.Join([]string{
		`{"ts":"2026-01-01T00:00:00Z","level":"debug","msg":"heartbeat","item_id":3}`,
		`{"ts":"2026-01-01T00:00:01Z","level":"info","msg":"transformed","item_id":3,"stage":"transform"}`,
		`{"ts":"2026-01-01T00:00:02Z","level":"warn","msg":"publish retry","item_id":4,"stage":"publish"}`,
	}, "\n") + "\n"
	logPath := filepath.Join(env.cfg.Paths.LogDir, "reelpiped-test.log")
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if err := os.Symlink(logPath, filepath.Join(env.cfg.Paths.LogDir, "reelpiped.log")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--item", "3", "--level", "info"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "transformed")
	if strings.Contains(out, "heartbeat") || strings.Contains(out, "publish retry") {
		t.Fatalf("expected filtered output, got %q", out)
	}

	out, _, err = runCLI(t, []string{"logs", "-n", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("logs -n 1: %v", err)
	}
	if strings.TrimSpace(out) != strings.TrimSpace(strings.Split(content, "\n")[2]) {
		t.Fatalf("expected last line only, got %q", out)
	}
}

func TestLogsWithoutDaemonLog(t *testing.T) {
	env := setupCLITestEnv(t)

	out, errOut, err := runCLI(t, []string{"logs"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "" {
		t.Fatalf("expected no output, got %q", out)
	}
	requireContains(t, errOut, "no daemon log")
}
