package subscriber

import (
	"strings"
	"testing"
)

func TestSubackError(t *testing.T) {
	tests := []struct {
		name    string
		result  map[string]byte
		wantErr bool
	}{
		{"granted qos0", map[string]byte{"sensors/telemetry": 0}, false},
		{"granted qos1", map[string]byte{"sensors/telemetry": 1}, false},
		{"no result", nil, false},
		{"rejected", map[string]byte{"sensors/telemetry": 0x80}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := subackError(tt.result)
			if (err != nil) != tt.wantErr {
				t.Fatalf("subackError(%v) = %v, wantErr %v", tt.result, err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "sensors/telemetry") {
				t.Errorf("error should name the topic: %v", err)
			}
		})
	}
}
