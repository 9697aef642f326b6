package cache

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jonwraymond/nodecache/value"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryStore()
	entries := map[Key]value.Value{
		NewKey("math", 1, 0):                value.Float(2.5),
		NewStageKey("usd", 2, "load", 0):    value.Stage{Identifier: "s", Prims: []string{"/World"}},
		NewStageKey("usd", 2, "process", 0): value.Stage{Identifier: "s", Prims: []string{}},
		NewKey("usd", 3, 1):                 value.None{},
	}
	for k, v := range entries {
		if err := src.Insert(ctx, k, v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var buf bytes.Buffer
	n, err := WriteSnapshot(ctx, src, &buf)
	if err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if n != len(entries) {
		t.Errorf("wrote %d entries, want %d", n, len(entries))
	}

	dst, err := NewLRUStore(WithMaxEntries(16))
	if err != nil {
		t.Fatalf("NewLRUStore: %v", err)
	}
	n, err = ReadSnapshot(ctx, dst, &buf)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if n != len(entries) {
		t.Errorf("read %d entries, want %d", n, len(entries))
	}
	for k, want := range entries {
		got, ok := dst.Get(ctx, k)
		if !ok || !reflect.DeepEqual(got, want) {
			t.Errorf("Get(%v) = (%#v, %v), want %#v", k, got, ok, want)
		}
	}
}

func TestSnapshot_Empty(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	if n, err := WriteSnapshot(ctx, NewMemoryStore(), &buf); err != nil || n != 0 {
		t.Fatalf("WriteSnapshot = (%d, %v)", n, err)
	}
	if n, err := ReadSnapshot(ctx, NewMemoryStore(), &buf); err != nil || n != 0 {
		t.Fatalf("ReadSnapshot = (%d, %v)", n, err)
	}
}

func TestReadSnapshot_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := ReadSnapshot(ctx, nil, &bytes.Buffer{}); !errors.Is(err, ErrNilStore) {
		t.Errorf("nil store error = %v, want ErrNilStore", err)
	}
	_, err := ReadSnapshot(ctx, NewMemoryStore(), bytes.NewReader([]byte("not zstd at all")))
	if !errors.Is(err, ErrSnapshot) {
		t.Errorf("garbage error = %v, want ErrSnapshot", err)
	}
}
