package docker

import (
	"bytes"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// framed builds a multiplexed stream the way the daemon does.
func framed(t *testing.T, parts ...any) []byte {
	t.Helper()
	var buf bytes.Buffer
	out := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	errw := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)
	for i := 0; i < len(parts); i += 2 {
		w := out
		if parts[i].(stdcopy.StdType) == stdcopy.Stderr {
			w = errw
		}
		_, err := w.Write([]byte(parts[i+1].(string)))
		require.NoError(t, err)
	}
	return buf.Bytes()
}

func TestDemuxInterleaved(t *testing.T) {
	raw := framed(t,
		stdcopy.Stdout, "line 1\n",
		stdcopy.Stderr, "warn a\n",
		stdcopy.Stdout, "line 2\n",
		stdcopy.Stderr, "warn b\n",
		stdcopy.Stdout, "line 3",
	)

	stdout, stderr := Demux(raw)
	assert.Equal(t, "line 1\nline 2\nline 3", string(stdout))
	assert.Equal(t, "warn a\nwarn b\n", string(stderr))
}

func TestDemuxIndependentOfInterleaving(t *testing.T) {
	a := framed(t, stdcopy.Stdout, "a", stdcopy.Stdout, "b", stdcopy.Stderr, "x", stdcopy.Stderr, "y")
	b := framed(t, stdcopy.Stderr, "x", stdcopy.Stdout, "a", stdcopy.Stderr, "y", stdcopy.Stdout, "b")

	ao, ae := Demux(a)
	bo, be := Demux(b)
	assert.Equal(t, ao, bo)
	assert.Equal(t, ae, be)
	assert.Equal(t, "ab", string(ao))
	assert.Equal(t, "xy", string(ae))
}

func TestDemuxMatchesStdCopy(t *testing.T) {
	raw := framed(t, stdcopy.Stdout, "17\n", stdcopy.Stderr, "note\n", stdcopy.Stdout, "done\n")

	var wantOut, wantErr bytes.Buffer
	_, err := stdcopy.StdCopy(&wantOut, &wantErr, bytes.NewReader(raw))
	require.NoError(t, err)

	stdout, stderr := Demux(raw)
	assert.Equal(t, wantOut.Bytes(), stdout)
	assert.Equal(t, wantErr.Bytes(), stderr)
}

func TestDemuxTruncatedFrame(t *testing.T) {
	raw := framed(t, stdcopy.Stdout, "complete", stdcopy.Stdout, "cut off")
	stdout, stderr := Demux(raw[:len(raw)-3])
	assert.Equal(t, "complete", string(stdout))
	assert.Empty(t, stderr)
}

func TestDemuxStopsAtDaemonError(t *testing.T) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte("ok"))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Systemerr).Write([]byte("daemon says no"))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte("lost"))

	stdout, stderr := Demux(buf.Bytes())
	assert.Equal(t, "ok", string(stdout))
	assert.Empty(t, stderr)
}

func TestDemuxFallback(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantStdout string
		wantStderr string
	}{
		{name: "plain output", raw: "hello world\n", wantStdout: "hello world\n"},
		{name: "error keyword", raw: "Segmentation fault: Error 139", wantStderr: "Segmentation fault: Error 139"},
		{name: "exception keyword", raw: "java.lang.NullPointerEXCEPTION", wantStderr: "java.lang.NullPointerEXCEPTION"},
		{name: "short garbage", raw: "abc", wantStdout: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := Demux([]byte(tt.raw))
			assert.Equal(t, tt.wantStdout, string(stdout))
			assert.Equal(t, tt.wantStderr, string(stderr))
		})
	}
}

func TestDemuxEmpty(t *testing.T) {
	stdout, stderr := Demux(nil)
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}

func TestDemuxEmptyFramesFallBack(t *testing.T) {
	empty := []byte{byte(stdcopy.Stdout), 0, 0, 0, 0, 0, 0, 0}
	raw := append(empty, []byte("Traceback: some error")...)
	stdout, stderr := Demux(raw)
	assert.Empty(t, stdout)
	assert.Equal(t, raw, stderr)
}

func TestDemuxTruncatedFirstFrameFallsBack(t *testing.T) {
	raw := framed(t, stdcopy.Stdout, "hello world")[:10]
	stdout, stderr := Demux(raw)
	assert.Equal(t, raw, stdout)
	assert.Empty(t, stderr)
}
