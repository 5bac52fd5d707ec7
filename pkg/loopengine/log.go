package loopengine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pi-agent/concore/pkg/storagelock"
)

// IterationRecord is one NDJSON line appended to a run's log.
type IterationRecord struct {
	Iteration     int       `json:"iteration"`
	Timestamp     time.Time `json:"timestamp"`
	Prompt        string    `json:"prompt"`
	RawResponse   string    `json:"rawResponse"`
	Status        string    `json:"status"`
	GoalStatus    string    `json:"goalStatus,omitempty"`
	VerifyPassed  *bool     `json:"verifyPassed,omitempty"`
	StagnationHit bool      `json:"stagnationHit"`
	Issues        []string  `json:"issues,omitempty"`
}

// runLogger appends NDJSON iteration records and writes an atomic
// summary snapshot for one run.
type runLogger struct {
	runDir string
	runID  string
	file   *os.File
}

func newRunLogger(runDir, runID string) (*runLogger, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(runDir, runID+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &runLogger{runDir: runDir, runID: runID, file: f}, nil
}

func (l *runLogger) appendIteration(rec IterationRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = l.file.Write(line)
	return err
}

func (l *runLogger) close() error {
	return l.file.Close()
}

func (l *runLogger) logPath() string {
	return filepath.Join(l.runDir, l.runID+".jsonl")
}

// writeSummary atomically writes the run summary snapshot and updates
// the shared latest-summary.json pointer.
func writeSummary(runDir string, summary Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	summaryPath := filepath.Join(runDir, summary.RunID+".summary.json")
	if err := storagelock.AtomicWriteTextFile(summaryPath, string(data)); err != nil {
		return err
	}
	latestPath := filepath.Join(runDir, "latest-summary.json")
	return storagelock.AtomicWriteTextFile(latestPath, string(data))
}
