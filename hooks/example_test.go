package hooks_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/nodecache/hooks"
	"github.com/jonwraymond/nodecache/value"
)

// validating rejects non-Float inputs before the node computes.
type validating struct {
	hooks.Base
}

func (validating) BeforeExecution(_ context.Context, _ uint32, inputs map[string]value.Value) error {
	if v, ok := inputs["value"]; ok && v.Kind() != value.KindFloat {
		return fmt.Errorf("input 'value' must be Float, got %s", v.Kind())
	}
	return nil
}

func (validating) Duplicate() hooks.Hooks { return validating{} }

func ExampleDispatcher_Execute() {
	d := hooks.NewDispatcher()
	_ = d.Register("math", 1, hooks.NewRegistration("math.multiply", "input validation"), validating{})

	process := func(_ context.Context, in map[string]value.Value) (map[string]value.Value, error) {
		return map[string]value.Value{"result": in["value"].(value.Float) * 2}, nil
	}

	out, err := d.Execute(context.Background(), 1, map[string]value.Value{"value": value.Float(21)}, process)
	fmt.Println(out["result"], err)

	_, err = d.Execute(context.Background(), 1, map[string]value.Value{"value": value.String("x")}, process)
	var herr *hooks.HookError
	fmt.Println(errors.As(err, &herr), herr.Event)
	// Output:
	// 42 <nil>
	// true before_execution
}
