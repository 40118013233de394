package model

import (
	"fmt"

	"github.com/docker/go-units"
)

// Mode selects how many of a problem's test cases are judged.
type Mode string

const (
	ModeRun    Mode = "run"    // first few cases, quick feedback
	ModeSubmit Mode = "submit" // every case
)

type TestResult struct {
	ID              int    `json:"id"`
	Input           string `json:"input"`
	ExpectedOutput  string `json:"expectedOutput"`
	ActualOutput    string `json:"actualOutput"`
	Passed          bool   `json:"passed"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	MemoryKB        int64  `json:"memoryKb"`
	ExecutionTime   string `json:"executionTime"`
	Memory          string `json:"memory"`
	// Error names the failure kind when the program did not run cleanly.
	Error string `json:"error,omitempty"`
}

// SetUsage fills both the numeric and the display forms of time and memory.
func (r *TestResult) SetUsage(timeMs, memoryKB int64) {
	r.ExecutionTimeMs = timeMs
	r.MemoryKB = memoryKB
	r.ExecutionTime = FormatDuration(timeMs)
	r.Memory = FormatMemory(memoryKB)
}

type SubmissionResult struct {
	Accepted    bool         `json:"accepted"`
	PassedCount int          `json:"passedTests"`
	TotalCount  int          `json:"totalTests"`
	TestResults []TestResult `json:"testResults"`
}

// Usage sums run time over all cases and takes the peak memory.
func (s SubmissionResult) Usage() (timeMs, memoryKB int64) {
	for _, r := range s.TestResults {
		timeMs += r.ExecutionTimeMs
		if r.MemoryKB > memoryKB {
			memoryKB = r.MemoryKB
		}
	}
	return timeMs, memoryKB
}

type FreeformResult struct {
	Output string `json:"output"`
	Error  string `json:"error"`
}

func FormatDuration(ms int64) string {
	return fmt.Sprintf("%dms", ms)
}

// FormatMemory renders a KiB count in binary units, e.g. 1536 -> "1.5MiB".
func FormatMemory(kb int64) string {
	return units.BytesSize(float64(kb * 1024))
}
