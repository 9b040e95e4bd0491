package bars

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/gauntletlabs/gauntlet/platform/errclass"
	"github.com/pkg/errors"
)

// Compress encodes bars for the cache: compact [ts,o,h,l,c,v] arrays as
// JSON, gzipped, then base64 so the payload survives any string-typed
// transport.
func Compress(bars []Bar) (string, error) {
	compact := make([]compactBar, len(bars))
	for i, b := range bars {
		compact[i] = b.compact()
	}
	raw, err := json.Marshal(compact)
	if err != nil {
		return "", errors.Wrap(err, "could not encode compact bars")
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", errors.Wrap(err, "could not gzip bars")
	}
	if err := zw.Close(); err != nil {
		return "", errors.Wrap(err, "could not finish gzip stream")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress is the exact inverse of Compress. A payload that fails any
// layer decodes to CORRUPT_DATA so callers fall back to the provider rather
// than trading on garbage.
func Decompress(payload string) ([]Bar, error) {
	zipped, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errclass.Wrap(errclass.CorruptData, err, "cached payload is not base64")
	}
	zr, err := gzip.NewReader(bytes.NewReader(zipped))
	if err != nil {
		return nil, errclass.Wrap(errclass.CorruptData, err, "cached payload is not gzip")
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errclass.Wrap(errclass.CorruptData, err, "cached gzip stream is truncated")
	}
	if err := zr.Close(); err != nil {
		return nil, errclass.Wrap(errclass.CorruptData, err, "cached gzip trailer is invalid")
	}
	var compact []compactBar
	if err := json.Unmarshal(raw, &compact); err != nil {
		return nil, errclass.Wrap(errclass.CorruptData, err, "cached payload is not a bar array")
	}
	out := make([]Bar, len(compact))
	for i, c := range compact {
		out[i] = c.bar()
	}
	return out, nil
}
