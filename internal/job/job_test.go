package job

import (
	"strings"
	"testing"
)

func TestJobWireFormat(t *testing.T) {
	j := Job{VideoFID: "v1", Username: "alice"}

	raw, err := j.Marshal()
	if err != nil {
		t.Fatalf("Marshal() unexpected error: %v", err)
	}

	s := string(raw)
	if !strings.Contains(s, `"video_fid":"v1"`) {
		t.Errorf("payload missing video_fid field: %s", s)
	}
	if !strings.Contains(s, `"username":"alice"`) {
		t.Errorf("payload missing username field: %s", s)
	}
	if strings.Contains(s, "mp3_fid") {
		t.Errorf("mp3_fid should be omitted until set: %s", s)
	}

	j.Mp3FID = "a1"
	raw, _ = j.Marshal()
	if !strings.Contains(string(raw), `"mp3_fid":"a1"`) {
		t.Errorf("payload missing mp3_fid after set: %s", raw)
	}
}

func TestUnmarshalToleratesUnknownFields(t *testing.T) {
	// Consumers must survive additive schema changes from newer producers.
	raw := `{"video_fid":"v1","mp3_fid":null,"username":"alice","trace_id":"xyz"}`

	j, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("Unmarshal() unexpected error: %v", err)
	}
	if j.VideoFID != "v1" || j.Username != "alice" || j.Mp3FID != "" {
		t.Errorf("Unmarshal() = %+v, want video_fid=v1 username=alice empty mp3_fid", j)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	if _, err := Unmarshal([]byte("not json")); err == nil {
		t.Fatal("Unmarshal() expected error for malformed payload")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{"", StatusSubmitted, true},
		{"", StatusCompleted, false},
		{StatusSubmitted, StatusConverting, true},
		{StatusSubmitted, StatusCompleted, false},
		{StatusConverting, StatusCompleted, true},
		{StatusConverting, StatusConverting, true}, // redelivery
		{StatusConverting, StatusDeadLettered, true},
		{StatusCompleted, StatusConverting, false},
		{StatusDeadLettered, StatusConverting, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
