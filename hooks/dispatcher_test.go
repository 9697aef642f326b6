package hooks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonwraymond/nodecache/observe"
	"github.com/jonwraymond/nodecache/value"
)

// recorder logs every callback it receives. fail maps an event to the error
// that callback returns.
type recorder struct {
	mu     *sync.Mutex
	events *[]string
	fail   map[Event]error
	label  string
}

func newRecorder() *recorder {
	return &recorder{mu: &sync.Mutex{}, events: new([]string), fail: map[Event]error{}, label: "orig"}
}

func (r *recorder) record(ev Event, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.events = append(*r.events, fmt.Sprintf("%s:%s:%s", r.label, ev, detail))
	return r.fail[ev]
}

func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(*r.events)
}

func (r *recorder) BeforeExecution(_ context.Context, nodeID uint32, inputs map[string]value.Value) error {
	return r.record(EventBeforeExecution, fmt.Sprintf("%d/%d", nodeID, len(inputs)))
}

func (r *recorder) AfterExecution(_ context.Context, nodeID uint32, outputs map[string]value.Value) error {
	return r.record(EventAfterExecution, fmt.Sprintf("%d/%d", nodeID, len(outputs)))
}

func (r *recorder) OnNodeRemoved(_ context.Context, nodeID uint32) error {
	return r.record(EventNodeRemoved, fmt.Sprint(nodeID))
}

func (r *recorder) OnInputConnectionAdded(_ context.Context, nodeID uint32, port string, src uint32) error {
	return r.record(EventInputConnectionAdded, fmt.Sprintf("%d/%s/%d", nodeID, port, src))
}

func (r *recorder) OnInputConnectionRemoved(_ context.Context, nodeID uint32, port string, src uint32) error {
	return r.record(EventInputConnectionRemoved, fmt.Sprintf("%d/%s/%d", nodeID, port, src))
}

func (r *recorder) OnParameterChanged(_ context.Context, nodeID uint32, name string, oldV, newV value.Value) error {
	return r.record(EventParameterChanged, fmt.Sprintf("%d/%s/%v->%v", nodeID, name, oldV, newV))
}

// Duplicate shares the event log so tests can see which instance was called.
func (r *recorder) Duplicate() Hooks {
	return &recorder{mu: r.mu, events: r.events, fail: r.fail, label: "dup"}
}

func double(_ context.Context, in map[string]value.Value) (map[string]value.Value, error) {
	f, _ := in["value"].(value.Float)
	return map[string]value.Value{"result": f * 2}, nil
}

func TestDispatcher_Register(t *testing.T) {
	d := NewDispatcher()
	reg := NewRegistration("math.multiply", "")

	if err := d.Register("", 1, reg, nil); !errors.Is(err, ErrMissingPluginID) {
		t.Errorf("Register without plugin = %v", err)
	}
	if err := d.Register("math", 1, reg, nil); err != nil {
		t.Fatalf("Register = %v", err)
	}
	if err := d.Register("math", 1, reg, nil); !errors.Is(err, ErrNodeRegistered) {
		t.Errorf("duplicate Register = %v", err)
	}
	if err := d.Register("math", 3, reg, newRecorder()); err != nil {
		t.Fatalf("Register = %v", err)
	}

	if got := d.Nodes(); !slices.Equal(got, []uint32{1, 3}) {
		t.Errorf("Nodes = %v", got)
	}
	if got, ok := d.Registration(3); !ok || got != reg {
		t.Errorf("Registration(3) = %+v, %v", got, ok)
	}
	if !d.Unregister(1) || d.Unregister(1) {
		t.Error("Unregister should succeed exactly once")
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d", d.Len())
	}
}

func TestDispatcher_RegisterKeepsDuplicate(t *testing.T) {
	d := NewDispatcher()
	rec := newRecorder()
	if err := d.Register("math", 1, Registration{}, rec); err != nil {
		t.Fatal(err)
	}
	d.InputConnectionAdded(context.Background(), 1, "value", 9)

	want := []string{"dup:on_input_connection_added:1/value/9"}
	if got := rec.log(); !slices.Equal(got, want) {
		t.Errorf("log = %v, want %v", got, want)
	}
}

func TestDispatcher_Execute(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher()
	rec := newRecorder()
	_ = d.Register("math", 2, Registration{}, rec)

	out, err := d.Execute(ctx, 2, map[string]value.Value{"value": value.Float(3)}, double)
	if err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if out["result"] != value.Float(6) {
		t.Errorf("result = %v", out["result"])
	}
	want := []string{"dup:before_execution:2/1", "dup:after_execution:2/1"}
	if got := rec.log(); !slices.Equal(got, want) {
		t.Errorf("log = %v, want %v", got, want)
	}

	if _, err := d.Execute(ctx, 99, nil, double); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown node = %v", err)
	}
	if _, err := d.Execute(ctx, 2, nil, nil); !errors.Is(err, ErrNilProcess) {
		t.Errorf("nil process = %v", err)
	}
}

func TestDispatcher_BeforeExecutionAborts(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mw := observe.NewMiddleware(nil, nil, observe.NewZapLogger(zap.New(core)))
	d := NewDispatcher(WithMiddleware(mw))

	cause := errors.New("input 'value' must be Float")
	rec := newRecorder()
	rec.fail[EventBeforeExecution] = cause
	_ = d.Register("math", 5, Registration{}, rec)

	var processed atomic.Bool
	_, err := d.Execute(context.Background(), 5, nil, func(ctx context.Context, in map[string]value.Value) (map[string]value.Value, error) {
		processed.Store(true)
		return nil, nil
	})

	var herr *HookError
	if !errors.As(err, &herr) || herr.Event != EventBeforeExecution || herr.NodeID != 5 {
		t.Fatalf("err = %v, want before_execution HookError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("HookError should carry the hook's message")
	}
	if processed.Load() {
		t.Error("process must not run after a before_execution failure")
	}
	if slices.ContainsFunc(rec.log(), func(s string) bool { return s == "dup:after_execution:5/0" }) {
		t.Error("after_execution must not run after an abort")
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 0 || logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 1 {
		t.Errorf("expected the abort logged once at error level, got %v", logs.All())
	}
	if logs.FilterMessage("node execution aborted").Len() != 1 {
		t.Errorf("expected one abort log entry, got %v", logs.All())
	}
}

func TestDispatcher_AfterExecutionWarns(t *testing.T) {
	var warnings []*HookError
	d := NewDispatcher(WithWarningHandler(func(_ context.Context, err *HookError) {
		warnings = append(warnings, err)
	}))
	rec := newRecorder()
	rec.fail[EventAfterExecution] = errors.New("stats update failed")
	_ = d.Register("math", 1, Registration{}, rec)

	out, err := d.Execute(context.Background(), 1, map[string]value.Value{"value": value.Float(2)}, double)
	if err != nil {
		t.Fatalf("after_execution failure must not fail Execute: %v", err)
	}
	if out["result"] != value.Float(4) {
		t.Errorf("outputs should still be delivered, got %v", out)
	}
	if len(warnings) != 1 || warnings[0].Event != EventAfterExecution {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestDispatcher_ProcessFailure(t *testing.T) {
	d := NewDispatcher()
	rec := newRecorder()
	_ = d.Register("math", 1, Registration{}, rec)

	boom := errors.New("boom")
	_, err := d.Execute(context.Background(), 1, nil, func(context.Context, map[string]value.Value) (map[string]value.Value, error) {
		return nil, boom
	})
	if !errors.Is(err, ErrProcessFailed) || !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if got := rec.log(); len(got) != 1 {
		t.Errorf("after_execution should not run on process failure: %v", got)
	}
}

func TestDispatcher_GraphEvents(t *testing.T) {
	ctx := context.Background()
	var warnings []Event
	d := NewDispatcher(WithWarningHandler(func(_ context.Context, err *HookError) {
		warnings = append(warnings, err.Event)
	}))
	rec := newRecorder()
	rec.fail[EventNodeRemoved] = errors.New("cleanup failed")
	rec.fail[EventParameterChanged] = errors.New("bad parameter")
	_ = d.Register("usd", 4, Registration{}, rec)

	d.InputConnectionAdded(ctx, 4, "stage", 1)
	d.InputConnectionRemoved(ctx, 4, "stage", 1)
	d.ParameterChanged(ctx, 4, "filter", value.String("a"), value.String("b"))
	d.NodeRemoved(ctx, 4)
	d.NodeRemoved(ctx, 4)
	d.InputConnectionAdded(ctx, 4, "stage", 2)

	want := []string{
		"dup:on_input_connection_added:4/stage/1",
		"dup:on_input_connection_removed:4/stage/1",
		"dup:on_parameter_changed:4/filter/a->b",
		"dup:on_node_removed:4",
	}
	if got := rec.log(); !slices.Equal(got, want) {
		t.Errorf("log = %v\nwant %v", got, want)
	}
	if !slices.Equal(warnings, []Event{EventParameterChanged, EventNodeRemoved}) {
		t.Errorf("warnings = %v", warnings)
	}
	if d.Len() != 0 {
		t.Error("removal must proceed even when the hook fails")
	}
}

// blocking reports overlapping calls for the same node.
type blocking struct {
	Base
	active  *atomic.Int32
	overlap *atomic.Bool
}

func (b *blocking) BeforeExecution(context.Context, uint32, map[string]value.Value) error {
	if b.active.Add(1) > 1 {
		b.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	b.active.Add(-1)
	return nil
}

func (b *blocking) OnParameterChanged(ctx context.Context, nodeID uint32, _ string, _, _ value.Value) error {
	return b.BeforeExecution(ctx, nodeID, nil)
}

func (b *blocking) Duplicate() Hooks { return b }

func TestDispatcher_SerializesPerNode(t *testing.T) {
	d := NewDispatcher()
	h := &blocking{active: new(atomic.Int32), overlap: new(atomic.Bool)}
	_ = d.Register("math", 1, Registration{}, h)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = d.Execute(context.Background(), 1, nil, double)
			} else {
				d.ParameterChanged(context.Background(), 1, "factor", value.Float(0), value.Float(1))
			}
		}()
	}
	wg.Wait()

	if h.overlap.Load() {
		t.Error("hook calls for one node overlapped")
	}
}

func TestDispatcher_RemoveNodes(t *testing.T) {
	d := NewDispatcher()
	rec := newRecorder()
	for id := range uint32(8) {
		_ = d.Register("math", id, Registration{}, rec)
	}

	d.RemoveNodes(context.Background(), []uint32{0, 2, 4, 6, 100})

	if got := d.Nodes(); !slices.Equal(got, []uint32{1, 3, 5, 7}) {
		t.Errorf("Nodes = %v", got)
	}
	if n := len(rec.log()); n != 4 {
		t.Errorf("OnNodeRemoved calls = %d, want 4", n)
	}
}

func TestDispatcher_MutateHoldsSlot(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher()
	rec := newRecorder()
	_ = d.Register("math", 1, Registration{}, rec)

	inApply := make(chan struct{})
	release := make(chan struct{})
	mutated := make(chan error, 1)
	go func() {
		mutated <- d.Mutate(ctx, 1, EventParameterChanged, func() error {
			close(inApply)
			<-release
			return nil
		}, func(ctx context.Context, h Hooks) error {
			return h.OnParameterChanged(ctx, 1, "factor", value.Float(2), value.Float(3))
		})
	}()
	<-inApply

	executed := make(chan struct{})
	go func() {
		_, _ = d.Execute(ctx, 1, nil, double)
		close(executed)
	}()
	select {
	case <-executed:
		t.Fatal("Execute ran between the change and its hook")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-mutated; err != nil {
		t.Fatalf("Mutate = %v", err)
	}
	<-executed

	want := []string{
		"dup:on_parameter_changed:1/factor/2->3",
		"dup:before_execution:1/0",
		"dup:after_execution:1/1",
	}
	if got := rec.log(); !slices.Equal(got, want) {
		t.Errorf("log = %v, want %v", got, want)
	}
}

func TestDispatcher_MutateApplyFailure(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher()
	rec := newRecorder()
	_ = d.Register("math", 1, Registration{}, rec)

	rejected := errors.New("unknown parameter")
	deliver := func(ctx context.Context, h Hooks) error {
		return h.OnParameterChanged(ctx, 1, "gain", value.None{}, value.Float(1))
	}
	if err := d.Mutate(ctx, 1, EventParameterChanged, func() error { return rejected }, deliver); !errors.Is(err, rejected) {
		t.Errorf("Mutate = %v, want apply error", err)
	}
	if got := rec.log(); len(got) != 0 {
		t.Errorf("hook ran after a failed apply: %v", got)
	}
	if err := d.Mutate(ctx, 7, EventParameterChanged, func() error { return nil }, deliver); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown node = %v", err)
	}
}

func TestDispatcher_RunGathersUnderSlot(t *testing.T) {
	d := NewDispatcher()
	_ = d.Register("math", 1, Registration{}, newRecorder())

	gathered := errors.New("source gone")
	_, err := d.Run(context.Background(), 1, func() (map[string]value.Value, error) {
		return nil, gathered
	}, double)
	if !errors.Is(err, gathered) {
		t.Errorf("Run = %v, want gather error", err)
	}

	out, err := d.Run(context.Background(), 1, func() (map[string]value.Value, error) {
		return map[string]value.Value{"value": value.Float(4)}, nil
	}, double)
	if err != nil || out["result"] != value.Float(8) {
		t.Errorf("Run = %v, %v", out, err)
	}
}
