package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/jonwraymond/nodecache/value"
)

// ErrSnapshot wraps failures reading or writing a snapshot stream.
var ErrSnapshot = errors.New("cache: snapshot failed")

// record is one line of a snapshot stream.
type record struct {
	Key   Key             `json:"key"`
	Value json.RawMessage `json:"value"`
}

// WriteSnapshot writes every live entry of src to w as zstd-compressed JSON
// lines. It returns the number of entries written.
func WriteSnapshot(ctx context.Context, src Ranger, w io.Writer) (int, error) {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}

	jw := json.NewEncoder(enc)
	n := 0
	var werr error
	src.Range(ctx, func(k Key, v value.Value) bool {
		if err := ctx.Err(); err != nil {
			werr = err
			return false
		}
		payload, err := value.Marshal(v)
		if err != nil {
			werr = fmt.Errorf("encode %s: %w", k, err)
			return false
		}
		if err := jw.Encode(record{Key: k, Value: payload}); err != nil {
			werr = err
			return false
		}
		n++
		return true
	})

	if cerr := enc.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return n, fmt.Errorf("%w: %w", ErrSnapshot, werr)
	}
	return n, nil
}

// ReadSnapshot inserts every entry of a stream produced by WriteSnapshot into
// dst. Entries already present in dst are overwritten. It returns the number
// of entries inserted.
func ReadSnapshot(ctx context.Context, dst Store, r io.Reader) (int, error) {
	if dst == nil {
		return 0, ErrNilStore
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	defer dec.Close()

	jr := json.NewDecoder(dec)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var rec record
		if err := jr.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("%w: %w", ErrSnapshot, err)
		}
		v, err := value.Unmarshal(rec.Value)
		if err != nil {
			return n, fmt.Errorf("%w: %s: %w", ErrSnapshot, rec.Key, err)
		}
		if err := dst.Insert(ctx, rec.Key, v); err != nil {
			return n, err
		}
		n++
	}
}
