package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"collage/internal/artifact"
	"collage/internal/config"
	"collage/internal/logging"
	"collage/internal/queue"
	"collage/internal/testsupport"
	"collage/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
upload_dir = %q
artifact_dir = %q
state_dir = %q
log_dir = %q

[queue]
backend = "sqlite"
poll_interval_ms = %d

[workflow]
workers = %d
heartbeat_interval = %d
heartbeat_timeout = %d
error_retry_interval = %d
`,
		cfg.Paths.UploadDir, cfg.Paths.ArtifactDir, cfg.Paths.StateDir, cfg.Paths.LogDir,
		cfg.Queue.PollIntervalMs, cfg.Workflow.Workers, cfg.Workflow.HeartbeatInterval,
		cfg.Workflow.HeartbeatTimeout, cfg.Workflow.ErrorRetryInterval)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("collage %s: %v\nstdout: %s\nstderr: %s", strings.Join(args, " "), err, out, stderr)
	}
	return out
}

func (e *cliTestEnv) image(t *testing.T, name string, w, h int) string {
	t.Helper()
	return testsupport.WritePNG(t, filepath.Join(e.baseDir, "inputs", name), w, h, color.NRGBA{G: 0xff, A: 0xff})
}

func (e *cliTestEnv) job(t *testing.T, id string) *queue.Job {
	t.Helper()
	store := testsupport.MustOpenStore(t, e.cfg)
	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job == nil {
		t.Fatalf("job %s not found", id)
	}
	return job
}

func TestSubmitCopiesInputsToUploadDir(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.image(t, "a.png", 10, 10)

	id := strings.TrimSpace(env.mustRun(t, "submit", "--layout", "vertical", "--border-width", "3", "--border-color", "#000", src))
	job := env.job(t, id)
	if job.State != queue.StateQueued || job.Layout != queue.LayoutVertical || job.BorderWidth != 3 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if !job.CleanupInputs {
		t.Fatal("copied uploads should be cleaned up by the worker")
	}
	if len(job.Inputs) != 1 || filepath.Dir(job.Inputs[0].Path) != env.cfg.Paths.UploadDir {
		t.Fatalf("expected input staged in upload dir, got %+v", job.Inputs)
	}
	if job.BorderColor != (color.NRGBA{A: 0xff}) {
		t.Fatalf("unexpected border color %+v", job.BorderColor)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("original input must stay in place: %v", err)
	}
}

func TestSubmitInPlaceKeepsPaths(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.image(t, "a.png", 10, 10)

	id := strings.TrimSpace(env.mustRun(t, "submit", "--in-place", src))
	job := env.job(t, id)
	if job.CleanupInputs {
		t.Fatal("in-place inputs must not be cleaned up")
	}
	if job.Inputs[0].Path != src {
		t.Fatalf("expected %s, got %s", src, job.Inputs[0].Path)
	}
}

func TestSubmitRejectsBadArguments(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.image(t, "a.png", 10, 10)
	text := filepath.Join(env.baseDir, "notes.txt")
	testsupport.WriteFile(t, text, 16)

	cases := map[string][]string{
		"layout":  {"submit", "--layout", "grid", src},
		"border":  {"submit", "--border-width", "-1", src},
		"color":   {"submit", "--border-color", "nope", src},
		"missing": {"submit", filepath.Join(env.baseDir, "missing.png")},
		"size":    {"submit", "--max-size", "10B", src},
		"format":  {"submit", text},
		"no args": {"submit"},
	}
	for name, args := range cases {
		if _, _, err := env.run(t, args...); err == nil {
			t.Fatalf("%s: expected submit to fail", name)
		}
	}
	entries, _ := os.ReadDir(env.cfg.Paths.UploadDir)
	if len(entries) != 0 {
		t.Fatalf("rejected submissions must not leave uploads, found %d", len(entries))
	}
}

func TestSubmitInPlaceFailureKeepsOriginals(t *testing.T) {
	env := setupCLITestEnv(t)
	src := env.image(t, "a.png", 10, 10)

	if _, _, err := env.run(t, "submit", "--in-place", src, filepath.Join(env.baseDir, "missing.png")); err == nil {
		t.Fatal("expected submit to fail")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("in-place originals must survive a rejected submission: %v", err)
	}
}

func TestStatusAndArtifactBeforeCompletion(t *testing.T) {
	env := setupCLITestEnv(t)
	id := strings.TrimSpace(env.mustRun(t, "submit", env.image(t, "a.png", 4, 4)))

	out := env.mustRun(t, "status", id)
	if !strings.Contains(out, "Queued") {
		t.Fatalf("expected queued state, got %q", out)
	}
	out = env.mustRun(t, "--json", "status", "unknown-id")
	if !strings.Contains(out, `"state": "not_found"`) {
		t.Fatalf("expected not_found JSON, got %q", out)
	}
	if _, _, err := env.run(t, "artifact", id); err == nil {
		t.Fatal("expected artifact lookup to fail before completion")
	}
}

func TestSubmitWaitCompletesWithWorker(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	mgr := workflow.NewManager(env.cfg, store, artifact.NewStore(env.cfg.Paths.ArtifactDir), logging.NewNop())
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	out := env.mustRun(t, "submit", "--wait", "--border-width", "2", env.image(t, "a.png", 10, 20), env.image(t, "b.png", 30, 40))
	if !strings.Contains(out, "Completed") {
		t.Fatalf("expected completed report, got %q", out)
	}
	id := strings.TrimSpace(strings.TrimPrefix(strings.SplitN(out, "\n", 2)[0], "Job:"))

	path := strings.TrimSpace(env.mustRun(t, "artifact", id))
	if filepath.Base(path) != "collage_"+id+".png" {
		t.Fatalf("unexpected artifact path %q", path)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}

	exported := filepath.Join(env.baseDir, "export", "out.png")
	if err := os.MkdirAll(filepath.Dir(exported), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	env.mustRun(t, "artifact", "--output", exported, id)
	got, err := os.ReadFile(exported)
	if err != nil || !bytes.Equal(got, want) {
		t.Fatalf("exported artifact differs (%v)", err)
	}
	streamed := env.mustRun(t, "artifact", "-o", "-", id)
	if streamed != string(want) {
		t.Fatalf("streamed artifact differs: %d bytes, want %d", len(streamed), len(want))
	}
	entries, _ := os.ReadDir(env.cfg.Paths.UploadDir)
	if len(entries) != 0 {
		t.Fatalf("expected staged uploads cleaned up, found %d", len(entries))
	}
}

func TestQueueCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	first := strings.TrimSpace(env.mustRun(t, "submit", env.image(t, "a.png", 4, 4)))
	second := strings.TrimSpace(env.mustRun(t, "submit", env.image(t, "b.png", 4, 4)))

	out := env.mustRun(t, "queue", "list")
	if !strings.Contains(out, first) || !strings.Contains(out, second) {
		t.Fatalf("expected both jobs listed, got %q", out)
	}
	if !strings.Contains(out, "none") {
		t.Fatalf("expected borderless jobs listed as none, got %q", out)
	}
	var listed []struct {
		ID          string   `json:"id"`
		BorderColor string   `json:"border_color"`
		Inputs      []string `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(env.mustRun(t, "--json", "queue", "list")), &listed); err != nil {
		t.Fatalf("decode json list: %v", err)
	}
	if len(listed) != 2 || listed[0].BorderColor == "" || len(listed[0].Inputs) != 1 {
		t.Fatalf("unexpected json list %+v", listed)
	}
	if !strings.HasSuffix(listed[0].Inputs[0], ".png") {
		t.Fatalf("expected input labelled by path, got %q", listed[0].Inputs[0])
	}
	out = env.mustRun(t, "queue", "list", "--state", "failed")
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("expected empty filtered list, got %q", out)
	}
	if _, _, err := env.run(t, "queue", "list", "--state", "bogus"); err == nil {
		t.Fatal("expected unknown state to fail")
	}

	out = env.mustRun(t, "queue", "stats")
	if !strings.Contains(out, "Queued") || !strings.Contains(out, "2") {
		t.Fatalf("unexpected stats output %q", out)
	}

	out = env.mustRun(t, "queue", "remove", first)
	if !strings.Contains(out, "Removed "+first) {
		t.Fatalf("unexpected remove output %q", out)
	}
	if _, _, err := env.run(t, "queue", "remove", first); err == nil {
		t.Fatal("expected removing a missing job to fail")
	}

	out = env.mustRun(t, "queue", "clear")
	if !strings.Contains(out, "Cleared 0") {
		t.Fatalf("queued jobs must survive clear, got %q", out)
	}

	out = env.mustRun(t, "queue", "health")
	if !strings.Contains(out, "Integrity check: yes") || !strings.Contains(out, "Total jobs: 1") {
		t.Fatalf("unexpected health output %q", out)
	}
}

func TestConfigCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(env.baseDir, "generated", "config.toml")

	out := env.mustRun(t, "config", "init", "--path", target)
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected init output %q", out)
	}
	if _, _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	env.mustRun(t, "config", "init", "--path", target, "--overwrite")

	out = env.mustRun(t, "config", "show")
	if !strings.Contains(out, "[paths]") || !strings.Contains(out, env.cfg.Paths.StateDir) {
		t.Fatalf("unexpected show output %q", out)
	}
	out = env.mustRun(t, "config", "validate")
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestFormatStateLabel(t *testing.T) {
	cases := map[string]string{
		"queued":    "Queued",
		"not_found": "Not Found",
		"":          "",
	}
	for in, want := range cases {
		if got := formatStateLabel(in); got != want {
			t.Fatalf("formatStateLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildQueueStatsRowsFollowsLifecycleOrder(t *testing.T) {
	rows := buildQueueStatsRows(map[queue.State]int{
		queue.StateFailed: 1,
		queue.StateQueued: 1200,
	})
	if len(rows) != 2 || rows[0][0] != "Queued" || rows[0][1] != "1,200" || rows[1][0] != "Failed" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestFormatBorder(t *testing.T) {
	if got := formatBorder(&queue.Job{}); got != "none" {
		t.Fatalf("formatBorder(zero) = %q", got)
	}
	job := &queue.Job{BorderWidth: 3, BorderColor: color.NRGBA{A: 0xff}}
	if got := formatBorder(job); got != "3px #000000" {
		t.Fatalf("formatBorder = %q", got)
	}
	job.BorderColor = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x80}
	if got := formatBorder(job); got != "3px #ffffff80" {
		t.Fatalf("formatBorder translucent = %q", got)
	}
}
