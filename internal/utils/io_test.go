package utils

import (
	"strings"
	"testing"
)

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		limit   int64
		want    string
		wantErr string
	}{
		{name: "trims whitespace", in: "  {\"type\":\"comment\"}\n", limit: 64, want: `{"type":"comment"}`},
		{name: "exactly at limit", limit: 10, in: "0123456789", want: "0123456789"},
		{name: "empty", limit: 10, in: " \n", wantErr: "empty"},
		{name: "too large", limit: 10, in: "0123456789x", wantErr: "exceeds 10 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readLimited(strings.NewReader(tt.in), tt.limit)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("readLimited failed: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("readLimited = %q, want %q", got, tt.want)
			}
		})
	}
}
