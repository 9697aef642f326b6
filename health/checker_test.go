package health

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatus_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"s": StatusDegraded})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"s":"degraded"}` {
		t.Errorf("got %s", b)
	}
}

func TestResultConstructors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		result Result
		status Status
		err    error
	}{
		{"healthy", Healthy("ok"), StatusHealthy, nil},
		{"degraded", Degraded("slow"), StatusDegraded, nil},
		{"unhealthy", Unhealthy("down", boom), StatusUnhealthy, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.status {
				t.Errorf("Status = %v, want %v", tt.result.Status, tt.status)
			}
			if tt.result.Error != tt.err {
				t.Errorf("Error = %v, want %v", tt.result.Error, tt.err)
			}
			if tt.result.Timestamp.IsZero() {
				t.Error("Timestamp should be set")
			}
		})
	}

	r := Healthy("ok").WithDetails(map[string]any{"k": 1})
	if r.Details["k"] != 1 {
		t.Errorf("Details = %v", r.Details)
	}
}

func TestCheckerFunc(t *testing.T) {
	c := NewCheckerFunc("fn", func(context.Context) Result { return Degraded("meh") })
	if c.Name() != "fn" {
		t.Errorf("Name = %q", c.Name())
	}
	if c.Check(context.Background()).Status != StatusDegraded {
		t.Error("Check should delegate to the function")
	}
}
