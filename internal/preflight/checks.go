package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reelpipe/internal/config"
	"reelpipe/internal/deps"
	"reelpipe/internal/queue"
)

// CheckTelegram verifies that the bot token is accepted by the Bot API.
func CheckTelegram(ctx context.Context, apiURL, token string) Result {
	const name = "Telegram"

	base := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing api url"}
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{Name: name, Detail: "missing bot token"}
	}

	status, err := ping(ctx, fmt.Sprintf("%s/bot%s/getMe", base, token))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%s)", strings.ReplaceAll(summarizeError(err), token, "***"))}
	}
	switch status {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusNotFound:
		return Result{Name: name, Detail: "auth failed (invalid bot token)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("auth check failed (%d)", status)}
	}
}

// CheckNtfy verifies that the ntfy server hosting the topic is healthy.
func CheckNtfy(ctx context.Context, topicURL string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(strings.TrimSpace(topicURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: "invalid topic url"}
	}
	health := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/v1/health"}

	status, err := ping(ctx, health.String())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%s)", summarizeError(err))}
	}
	if status != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", status)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func ping(ctx context.Context, target string) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDatabase summarizes a store health report.
func CheckDatabase(health queue.DatabaseHealth) Result {
	const name = "Database"

	switch {
	case health.Error != "":
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", health.DBPath, health.Error)}
	case !health.DatabaseExists:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", health.DBPath)}
	case !health.TableExists:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: schema missing)", health.DBPath)}
	case len(health.MissingColumns) > 0:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: missing columns %s)", health.DBPath, strings.Join(health.MissingColumns, ", "))}
	case !health.IntegrityCheck:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: integrity check failed)", health.DBPath)}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s (schema v%d, %d items)", health.DBPath, health.SchemaVersion, health.TotalItems),
	}
}

// CheckSystemDeps evaluates the external binaries the configured pipeline
// needs. Available binaries carry their reported version in Detail.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	for i, status := range statuses {
		if !status.Available || status.Command != cfg.Transform.FFmpegBinary {
			continue
		}
		if version, err := deps.FFmpegVersion(ctx, status.Command); err == nil && version != "" {
			statuses[i].Detail = version
		}
	}
	return statuses
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
