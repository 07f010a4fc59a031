package agent

import "testing"

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		content interface{}
		want    string
	}{
		{
			name:    "plain string",
			content: "hello",
			want:    "hello",
		},
		{
			name:    "string slice",
			content: []string{"hel", "lo"},
			want:    "hello",
		},
		{
			name: "text object list",
			content: []interface{}{
				map[string]interface{}{"type": "text", "text": "hel"},
				map[string]interface{}{"type": "text", "text": "lo"},
			},
			want: "hello",
		},
		{
			name: "non-text objects skipped",
			content: []interface{}{
				map[string]interface{}{"type": "text", "text": "hello"},
				map[string]interface{}{"type": "image", "source": "..."},
			},
			want: "hello",
		},
		{
			name:    "mixed list",
			content: []interface{}{"hel", map[string]interface{}{"type": "text", "text": "lo"}},
			want:    "hello",
		},
		{
			name:    "nil yields empty",
			content: nil,
			want:    "",
		},
		{
			name:    "unknown shape yields empty",
			content: 42,
			want:    "",
		},
		{
			name: "text object without text field",
			content: []interface{}{
				map[string]interface{}{"type": "text"},
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.content); got != tt.want {
				t.Errorf("ExtractText(%v) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}
