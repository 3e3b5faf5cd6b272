package sentinel

import (
	"bytes"
	"encoding/gob"
)

// encodeReplayResult/decodeReplayResult serialize a ReplayResult for
// storage in the fastcache-backed replay cache, which only accepts
// []byte values. gob is sufficient here: ReplayResult holds no
// interfaces or unexported state, and the cache is purely an in-process
// speed-up (never consulted across restarts), so schema evolution
// across versions is not a concern.
func encodeReplayResult(rr *ReplayResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeReplayResult(raw []byte) (*ReplayResult, error) {
	var rr ReplayResult
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rr); err != nil {
		return nil, err
	}
	return &rr, nil
}
