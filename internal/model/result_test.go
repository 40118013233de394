package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetUsage(t *testing.T) {
	var r TestResult
	r.SetUsage(12, 1536)
	assert.Equal(t, int64(12), r.ExecutionTimeMs)
	assert.Equal(t, "12ms", r.ExecutionTime)
	assert.Equal(t, "1.5MiB", r.Memory)
}

func TestFormatMemoryUsesKiB(t *testing.T) {
	assert.Equal(t, "0B", FormatMemory(0))
	assert.Equal(t, "512KiB", FormatMemory(512))
	assert.Equal(t, "1MiB", FormatMemory(1024))
	assert.Equal(t, "128MiB", FormatMemory(128*1024))
}

func TestSubmissionUsage(t *testing.T) {
	s := SubmissionResult{TestResults: []TestResult{
		{ExecutionTimeMs: 5, MemoryKB: 900},
		{ExecutionTimeMs: 7, MemoryKB: 2100},
		{ExecutionTimeMs: 1, MemoryKB: 300},
	}}
	timeMs, mem := s.Usage()
	assert.Equal(t, int64(13), timeMs)
	assert.Equal(t, int64(2100), mem)
}

func TestResultJSONAlwaysHasUsage(t *testing.T) {
	data, err := json.Marshal(TestResult{ID: 1})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"executionTimeMs", "memoryKb", "executionTime", "memory"} {
		assert.Contains(t, fields, key)
	}
	assert.NotContains(t, fields, "error")
}
