package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig creates a config file pointing all paths at a temp dir
// and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "greenroom.toml")
	content := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\n",
		filepath.Join(dir, "data"), filepath.Join(dir, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, configPath string, args ...string) string {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v\noutput: %s", args, err, out.String())
	}
	return out.String()
}

func TestTopicsAddAndList(t *testing.T) {
	configPath := writeTestConfig(t)

	out := runCommand(t, configPath, "topics", "add", "Baking", "Rye Starter", "--complexity", "2")
	if !strings.Contains(out, "Created topic") {
		t.Fatalf("unexpected add output: %s", out)
	}

	out = runCommand(t, configPath, "topics", "list", "Baking")
	if !strings.Contains(out, "Rye Starter") {
		t.Fatalf("expected topic in list output: %s", out)
	}
	if !strings.Contains(out, "2.00") {
		t.Fatalf("expected complexity column: %s", out)
	}
}

func TestProducersAddSubscribeDispatch(t *testing.T) {
	configPath := writeTestConfig(t)

	runCommand(t, configPath, "topics", "add", "Baking", "Rye Starter")
	runCommand(t, configPath, "producers", "add", "alice", "--name", "Alice")
	runCommand(t, configPath, "producers", "subscribe", "alice", "Baking")

	out := runCommand(t, configPath, "topics", "dispatch")
	if !strings.Contains(out, "@alice") {
		t.Fatalf("expected assignment to alice: %s", out)
	}

	out = runCommand(t, configPath, "work", "list", "--status", "issued")
	if !strings.Contains(out, "issued") {
		t.Fatalf("expected an issued work item: %s", out)
	}
}

func TestWorkSubmitMintsRef(t *testing.T) {
	configPath := writeTestConfig(t)

	runCommand(t, configPath, "topics", "add", "Baking", "Rye Starter")
	runCommand(t, configPath, "producers", "add", "alice")
	runCommand(t, configPath, "producers", "subscribe", "alice", "Baking")
	runCommand(t, configPath, "topics", "dispatch")

	out := runCommand(t, configPath, "work", "submit", "1", "--duration", "600")
	if !strings.Contains(out, "Recorded artifact") {
		t.Fatalf("unexpected submit output: %s", out)
	}
	// No --ref given, so one is minted.
	if strings.Contains(out, "(ref )") {
		t.Fatalf("expected a minted external ref: %s", out)
	}
}

func TestReportPipelineListsStatuses(t *testing.T) {
	configPath := writeTestConfig(t)

	out := runCommand(t, configPath, "report", "pipeline")
	for _, label := range []string{"Issued", "Submitted", "Published", "Rejected", "Expired"} {
		if !strings.Contains(out, label) {
			t.Fatalf("expected status %q in pipeline output: %s", label, out)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	configPath := writeTestConfig(t)

	out := runCommand(t, configPath, "config", "init", "--path", filepath.Join(t.TempDir(), "sample.toml"))
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %s", out)
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	configPath := writeTestConfig(t)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--config", configPath, "work", "list", "--status", "bogus"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for an unknown status")
	}
}
