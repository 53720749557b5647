package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func TestToolRegistry_Invoke(t *testing.T) {
	r := NewToolRegistry()
	r.Register(Tool{
		Name: "echo",
		Run: func(args map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": args["msg"]}, nil
		},
	})
	r.Register(Tool{
		Name: "fail",
		Run: func(map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("boom")
		},
	})

	tests := []struct {
		name     string
		tool     string
		args     string
		wantKey  string
		wantFrag string
	}{
		{"success", "echo", `{"msg":"hi"}`, "echoed", "hi"},
		{"empty args", "echo", "", "echoed", ""},
		{"unknown tool", "missing", `{}`, "error", "unknown function: missing"},
		{"bad args json", "echo", `{not json`, "error", "invalid arguments"},
		{"tool error", "fail", `{}`, "error", "fail failed: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Invoke(tt.tool, tt.args)

			var decoded map[string]any
			if err := json.Unmarshal([]byte(out), &decoded); err != nil {
				t.Fatalf("output is not JSON: %q", out)
			}
			if _, ok := decoded[tt.wantKey]; !ok {
				t.Errorf("output %q lacks key %q", out, tt.wantKey)
			}
			if tt.wantFrag != "" && !strings.Contains(out, tt.wantFrag) {
				t.Errorf("output %q does not contain %q", out, tt.wantFrag)
			}
		})
	}
}

func TestToolRegistry_Definitions(t *testing.T) {
	r := DefaultTools()
	defs := r.Definitions()
	if len(defs) != r.Len() {
		t.Fatalf("Definitions() returned %d, registry has %d", len(defs), r.Len())
	}

	for _, def := range defs {
		if def["type"] != "function" {
			t.Errorf("definition type = %v, want function", def["type"])
		}
		if def["name"] == "" {
			t.Error("definition has empty name")
		}
	}

	// Registration order preserved.
	if defs[0]["name"] != "get_weather" || defs[1]["name"] != "get_time" {
		t.Errorf("definition order = [%v %v]", defs[0]["name"], defs[1]["name"])
	}
}

func TestDefaultTools_Weather(t *testing.T) {
	r := DefaultTools()

	out := r.Invoke("get_weather", `{"city":"Lisbon"}`)
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output not JSON: %q", out)
	}
	if result["city"] != "Lisbon" {
		t.Errorf("city = %v", result["city"])
	}
	if _, ok := result["temperature"]; !ok {
		t.Error("result lacks temperature")
	}

	out = r.Invoke("get_weather", `{}`)
	if !strings.Contains(out, "error") {
		t.Errorf("missing city produced %q, want error payload", out)
	}
}
