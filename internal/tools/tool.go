// Package tools declares the tool surface the models may invoke: the Tool
// interface, the structured Result record every executor returns, and the
// Registry that validates arguments and dispatches execution.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is implemented by everything a model may call. Executors never
// return Go errors for operational failures; they return a Result with
// success=false so the session keeps running and the model can react.
type Tool interface {
	// Name is the identifier declared to the completion service.
	Name() string

	// Description is shown to the model in the tool schema.
	Description() string

	// Schema is the JSON-schema object describing the parameters.
	Schema() json.RawMessage

	// RequiresApproval decides, possibly from the arguments, whether this
	// invocation must pass the human approval gate before executing.
	RequiresApproval(args map[string]any) bool

	// Execute runs the tool with structured arguments.
	Execute(ctx context.Context, args map[string]any) Result
}

// Result is the structured record a tool execution produces. Every record
// carries a boolean "success"; failures add an "error" message.
type Result map[string]any

// OK builds a success result from key/value pairs.
func OK(kv ...any) Result {
	r := Result{"success": true}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		r[key] = kv[i+1]
	}
	return r
}

// Errorf builds a failure result.
func Errorf(format string, a ...any) Result {
	return Result{"success": false, "error": fmt.Sprintf(format, a...)}
}

// Success reports whether the record carries success=true.
func (r Result) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Error returns the error message of a failure record, or "".
func (r Result) Error() string {
	msg, _ := r["error"].(string)
	return msg
}

// ObjectSchema is a helper for declaring the common object-with-properties
// parameter schema shape.
func ObjectSchema(properties map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}

// StringArg reads a string argument, returning "" when absent or mistyped.
func StringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// IntArg reads a numeric argument, tolerating the float64 JSON decoding.
func IntArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
