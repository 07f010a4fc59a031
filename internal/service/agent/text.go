package agent

import (
	"strings"
)

// ExtractText normalizes a provider-shaped text payload to a single string.
// Three raw encodings are supported: a plain string, a list of
// {type:"text", text:...} objects, and a list of strings. Anything else
// yields the empty string.
func ExtractText(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v

	case []string:
		return strings.Join(v, "")

	case []interface{}:
		var b strings.Builder
		for _, item := range v {
			switch it := item.(type) {
			case string:
				b.WriteString(it)
			case map[string]interface{}:
				if it["type"] != "text" {
					continue
				}
				if s, ok := it["text"].(string); ok {
					b.WriteString(s)
				}
			}
		}
		return b.String()

	default:
		return ""
	}
}
