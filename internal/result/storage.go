package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Files written into every run directory.
const (
	CSVFile      = "outcomes.csv"
	SnapshotFile = "outcomes.jsonl.zst"
	MetaFile     = "run.json"
)

// RunMeta describes one benchmark run.
type RunMeta struct {
	ID          string    `json:"id"`
	Network     string    `json:"network"`
	Endpoint    string    `json:"endpoint,omitempty"`
	PackageID   string    `json:"package_id,omitempty"`
	GasBudget   uint64    `json:"gas_budget"`
	PoolSize    int       `json:"pool_size"`
	Iterations  int       `json:"iterations"`
	Scenarios   []string  `json:"scenarios"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Mismatches  int       `json:"mismatches"`
	Interrupted bool      `json:"interrupted"`
	Error       string    `json:"error,omitempty"`
}

func NewRunID() string {
	return uuid.NewString()
}

func CreateRunDir(baseDir string) (string, error) {
	runsDir, err := filepath.Abs(filepath.Join(baseDir, "runs"))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	// Runs started within the same second get a numeric suffix.
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	for n := 2; ; n++ {
		err := os.Mkdir(runDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating run dir: %w", err)
		}
		runDir = filepath.Join(runsDir, fmt.Sprintf("%s-%d", stamp, n))
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func WriteRunMeta(runDir string, meta *RunMeta) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, MetaFile), data, 0o644)
}

func ReadRunMeta(runDir string) (*RunMeta, error) {
	data, err := os.ReadFile(filepath.Join(runDir, MetaFile))
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}

// Load reads a run's records, preferring the full-fidelity snapshot and
// falling back to the CSV export.
func Load(runDir string) ([]Outcome, error) {
	snap := filepath.Join(runDir, SnapshotFile)
	if _, err := os.Stat(snap); err == nil {
		return ReadSnapshot(snap)
	}
	return ReadCSV(filepath.Join(runDir, CSVFile))
}

// Save writes the snapshot and the CSV export of a run.
func Save(runDir string, records []Outcome, maxMessageLen int) error {
	if err := WriteSnapshot(filepath.Join(runDir, SnapshotFile), records); err != nil {
		return err
	}
	return WriteCSV(filepath.Join(runDir, CSVFile), records, maxMessageLen)
}
