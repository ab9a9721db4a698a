package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/rollbench/internal/classify"
	"github.com/signalnine/rollbench/internal/config"
	"github.com/signalnine/rollbench/internal/result"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	resultsDir := filepath.Join(dir, "results")
	path := filepath.Join(dir, "rollbench.yaml")
	body += "results:\n  dir: " + resultsDir + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, resultsDir
}

const quickSim = `network: sim
iterations: 2
pool:
  size: 2
throttle:
  delay: 1ms
  shared_delay: 1ms
scenarios: [depth, rebate]
`

func TestRunDryRun(t *testing.T) {
	path, resultsDir := writeConfig(t, quickSim)
	out, err := execute(t, "", "--config", path, "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"Run directory:", "--- Results ---", "No mismatches."} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	latest, err := filepath.EvalSymlinks(filepath.Join(resultsDir, "latest"))
	if err != nil {
		t.Fatalf("latest link: %v", err)
	}
	records, err := result.Load(latest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// depth: 2 kinds x 4 depths x 2 iterations; rebate: 3 patterns x (setup + call) x 2.
	if len(records) != 16+12 {
		t.Errorf("expected 28 records, got %d", len(records))
	}
	meta, err := result.ReadRunMeta(latest)
	if err != nil {
		t.Fatalf("ReadRunMeta: %v", err)
	}
	if meta.Total != len(records) || meta.Interrupted || meta.ID == "" {
		t.Errorf("unexpected meta %+v", meta)
	}
	if _, err := os.Stat(filepath.Join(resultsDir, result.CSVFile)); err != nil {
		t.Errorf("cumulative csv missing: %v", err)
	}

	// A second run appends to the cumulative CSV.
	if _, err := execute(t, "", "--config", path, "run"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	all, err := result.ReadCSV(filepath.Join(resultsDir, result.CSVFile))
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2*len(records) {
		t.Errorf("cumulative csv has %d rows, want %d", len(all), 2*len(records))
	}
}

func TestRunMismatchFails(t *testing.T) {
	// Every shared submission is rejected as a version conflict, so shared
	// success cases diverge.
	path, _ := writeConfig(t, quickSim+"sim:\n  conflict_every: 1\n")
	out, err := execute(t, "", "--config", path, "run", "--scenario", "depth")
	if err == nil || !strings.Contains(err.Error(), "diverged") {
		t.Fatalf("expected mismatch error, got %v\n%s", err, out)
	}
	if !strings.Contains(out, "INPUT_OBJECT_VERSION_CONFLICT") {
		t.Errorf("expected conflicts in mismatch report:\n%s", out)
	}
}

func TestRunUnknownScenario(t *testing.T) {
	path, _ := writeConfig(t, quickSim)
	if _, err := execute(t, "", "--config", path, "run", "--scenario", "nope"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestReportAfterRun(t *testing.T) {
	path, _ := writeConfig(t, quickSim)
	if _, err := execute(t, "", "--config", path, "run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	out, err := execute(t, "", "--config", path, "report", "--format", "markdown")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out, "| depth | threshold |") {
		t.Errorf("expected markdown breakdown:\n%s", out)
	}
}

func TestList(t *testing.T) {
	out, err := execute(t, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, name := range []string{"depth", "arithmetic", "lifecycle", "balance", "rebate", "rollback", "payload"} {
		if !strings.Contains(out, "  - "+name+":") {
			t.Errorf("list is missing %s:\n%s", name, out)
		}
	}
}

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  []string
	}{
		{
			name: "args",
			args: []string{"classify", "MoveAbort(MoveLocation { module: bench }, 3) in command 0"},
			want: []string{"kind: MOVE_ABORT", "code: 3"},
		},
		{
			name:  "stdin",
			args:  []string{"classify"},
			stdin: "InsufficientGas",
			want:  []string{"kind: INSUFFICIENT_GAS", "code: 4002"},
		},
		{
			name: "bounds fallback",
			args: []string{"classify", "--bounds", "vector operation failed"},
			want: []string{"kind: OUT_OF_BOUNDS", "code: 4020"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("expected %q in output:\n%s", w, out)
				}
			}
		})
	}
}

func TestReclassify(t *testing.T) {
	records := []result.Outcome{
		{Category: "arithmetic", Pattern: "bounds", Failed: true, ErrorKind: classify.Unknown,
			ErrorMessage: "VMError in vector_get_owned: vector operation failed with sub status 1 in command 0"},
		{Category: "depth", Pattern: "threshold", Failed: true, ErrorKind: classify.Unknown,
			ErrorMessage: "MoveAbort(MoveLocation { module: bench }, 1) in command 0"},
		{Category: "depth", Pattern: "threshold"},
	}
	changed := reclassify(records)
	if len(changed) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changed))
	}
	if records[0].ErrorKind != classify.OutOfBounds || records[0].AbortCode == nil || *records[0].AbortCode != classify.CodeOutOfBounds {
		t.Errorf("bounds record not overridden: %+v", records[0])
	}
	if records[1].ErrorKind != classify.MoveAbort || *records[1].AbortCode != 1 {
		t.Errorf("abort record: %+v", records[1])
	}
	if records[2].Failed {
		t.Error("successful record must stay untouched")
	}
	if again := reclassify(records); len(again) != 0 {
		t.Errorf("reclassify is not idempotent: %d changes", len(again))
	}
}

func TestApplyRunFlags(t *testing.T) {
	defer func() { flagDryRun, flagIterations, flagPoolSize, flagScenarios = false, 0, 0, nil }()

	cfg := &config.Config{Network: config.NetworkTestnet, Iterations: 10}
	flagDryRun, flagIterations, flagPoolSize, flagScenarios = true, 4, 3, []string{"depth"}
	if err := applyRunFlags(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Network != config.NetworkSim || cfg.Iterations != 4 || cfg.Pool.Size != 3 || cfg.Scenarios[0] != "depth" {
		t.Errorf("flags not applied: %+v", cfg)
	}

	flagIterations = 1
	if err := applyRunFlags(cfg); err == nil {
		t.Error("expected error for one iteration")
	}
}

func TestDepthsFromConfig(t *testing.T) {
	if got := depthsFromConfig(nil); got != nil {
		t.Errorf("expected nil for empty depths, got %v", got)
	}
	got := depthsFromConfig(map[string]uint64{"early": 2, "deep": 30})
	if got[result.Early] != 2 || got[result.Deep] != 30 || len(got) != 2 {
		t.Errorf("unexpected depths %v", got)
	}
}
