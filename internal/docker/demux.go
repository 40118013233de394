package docker

import (
	"bytes"

	"github.com/docker/docker/pkg/stdcopy"
)

// Demux splits a multiplexed non-TTY Docker stream into stdout and stderr.
// Frames are accumulated per stream in order; a truncated trailing frame is
// dropped.
//
// When nothing could be attributed to either stream (unframed output, a
// truncated first frame, only empty frames) the raw text is classified by
// keyword: anything mentioning "error" or "exception" counts as stderr. This
// misfiles legitimate stdout that contains those words.
func Demux(raw []byte) (stdout, stderr []byte) {
	var out, errOut bytes.Buffer
	// the error only tells us the stream was not framed; the fallback covers it
	_, _ = stdcopy.StdCopy(&out, &errOut, bytes.NewReader(raw))

	if out.Len() == 0 && errOut.Len() == 0 && len(raw) > 0 {
		if looksLikeError(raw) {
			return nil, raw
		}
		return raw, nil
	}
	return out.Bytes(), errOut.Bytes()
}

func looksLikeError(raw []byte) bool {
	lower := bytes.ToLower(raw)
	return bytes.Contains(lower, []byte("error")) || bytes.Contains(lower, []byte("exception"))
}
