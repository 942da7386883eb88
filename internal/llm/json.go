package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSON = errors.New("no JSON object in model output")

// DecodeJSON decodes the first JSON object in a model reply into v. Code
// fences and any prose around the object are ignored.
func DecodeJSON(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return errNoJSON
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
