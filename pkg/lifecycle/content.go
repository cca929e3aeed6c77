package lifecycle

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// OutputType tags the Output variants.
type OutputType string

const (
	OutputText OutputType = "text"
	OutputJSON OutputType = "json"
)

// Output is the user-facing content of a task. Content is a string for
// OutputText and a decoded JSON value for OutputJSON.
type Output struct {
	Type    OutputType `json:"type"`
	Content any        `json:"content"`
}

// TextOutput builds a text output.
func TextOutput(s string) *Output {
	return &Output{Type: OutputText, Content: s}
}

// JSONOutput builds a structured output.
func JSONOutput(v any) *Output {
	return &Output{Type: OutputJSON, Content: v}
}

// Text returns the content of a text output.
func (o *Output) Text() (string, bool) {
	if o == nil || o.Type != OutputText {
		return "", false
	}
	s, ok := o.Content.(string)
	return s, ok
}

// NormalizeContent converts a gateway content value into an Output:
//
//	nil                              -> nil
//	"hello"                          -> text "hello"
//	{"type":"result","data":inner}   -> json inner
//	any other object                 -> json object
//	anything else                    -> text, stringified
func NormalizeContent(content any) *Output {
	switch v := content.(type) {
	case nil:
		return nil
	case string:
		return TextOutput(v)
	case map[string]any:
		if kind, _ := v["type"].(string); kind == "result" {
			inner, ok := v["data"]
			if !ok {
				inner = map[string]any{}
			}
			return JSONOutput(inner)
		}
		return JSONOutput(v)
	default:
		return TextOutput(stringify(v))
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case []any:
		if b, err := json.Marshal(x); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
