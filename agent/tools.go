package agent

import (
	"encoding/json"
	"fmt"
	"time"
)

// ToolFunc executes a function call with its decoded arguments and returns
// the result payload.
type ToolFunc func(args map[string]any) (map[string]any, error)

// Tool is a callable function exposed to the model.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
	Run        ToolFunc
}

// ToolRegistry matches function_call items against local implementations.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *ToolRegistry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Definitions returns the tool declarations for the session payload, in
// registration order.
func (r *ToolRegistry) Definitions() []map[string]any {
	defs := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		def := map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
		}
		if t.Parameters != nil {
			def["parameters"] = t.Parameters
		}
		defs = append(defs, def)
	}
	return defs
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	return len(r.order)
}

// Invoke runs the named tool against its JSON-encoded arguments and returns
// the JSON-encoded output. Unknown names and failed executions produce an
// error payload rather than dropping the call, so the model always receives
// a function_call_output.
func (r *ToolRegistry) Invoke(name, argsJSON string) string {
	tool, ok := r.tools[name]
	if !ok {
		return errorPayload(fmt.Sprintf("unknown function: %s", name))
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return errorPayload(fmt.Sprintf("invalid arguments for %s: %v", name, err))
		}
	}

	result, err := tool.Run(args)
	if err != nil {
		return errorPayload(fmt.Sprintf("%s failed: %v", name, err))
	}

	out, err := json.Marshal(result)
	if err != nil {
		return errorPayload(fmt.Sprintf("%s produced unencodable result: %v", name, err))
	}
	return string(out)
}

func errorPayload(msg string) string {
	out, _ := json.Marshal(map[string]any{"error": msg})
	return string(out)
}

// DefaultTools returns the demo registry with mock implementations.
func DefaultTools() *ToolRegistry {
	r := NewToolRegistry()

	r.Register(Tool{
		Name:        "get_weather",
		Description: "Get the current weather for a city.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
		Run: func(args map[string]any) (map[string]any, error) {
			city, _ := args["city"].(string)
			if city == "" {
				return nil, fmt.Errorf("city is required")
			}
			return map[string]any{
				"city":        city,
				"temperature": 21,
				"unit":        "celsius",
				"conditions":  "partly cloudy",
			}, nil
		},
	})

	r.Register(Tool{
		Name:        "get_time",
		Description: "Get the current local time.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Run: func(map[string]any) (map[string]any, error) {
			return map[string]any{"time": time.Now().Format(time.RFC3339)}, nil
		},
	})

	return r
}
