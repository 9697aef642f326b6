package observe_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/nodecache/observe"
)

func ExampleConfig_Validate() {
	cfg := observe.Config{
		ServiceName: "nodecache",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "zipkin"},
	}
	err := cfg.Validate()
	fmt.Println(errors.Is(err, observe.ErrInvalidTracingExporter))
	// Output:
	// true
}

func ExampleMiddleware_Invoke() {
	mw := observe.NopMiddleware()
	meta := observe.NodeMeta{PluginID: "math", NodeID: 1}

	err := mw.Invoke(context.Background(), meta, "before_execution", func(ctx context.Context) error {
		return errors.New("input a is not connected")
	})
	fmt.Println(err)
	// Output:
	// input a is not connected
}

func ExampleNodeMeta_SpanName() {
	meta := observe.NodeMeta{PluginID: "usd", NodeID: 3}
	fmt.Println(meta.SpanName("on_parameter_changed"))
	fmt.Println(meta)
	// Output:
	// node.on_parameter_changed
	// usd/3
}
