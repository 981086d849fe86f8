package journal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/idlewatch/pkg/testutil"
	"github.com/Veraticus/idlewatch/pkg/types"
)

func TestFormatLine(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		incident types.Incident
		want     string
	}{
		{
			name:     "single line",
			incident: types.Incident{Time: at, Kind: "abnormal_exit", Message: "sensor exited unexpectedly with code 1"},
			want:     "2024-05-01T08:00:00Z: abnormal_exit sensor exited unexpectedly with code 1\n",
		},
		{
			name:     "multiline message is flattened",
			incident: types.Incident{Time: at, Kind: "diagnostic", Message: "first\nsecond\n"},
			want:     "2024-05-01T08:00:00Z: diagnostic first | second\n",
		},
		{
			name:     "local time is written in UTC",
			incident: types.Incident{Time: at.In(time.FixedZone("X", 3600)), Kind: "stream", Message: "eof"},
			want:     "2024-05-01T08:00:00Z: stream eof\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLine(tt.incident); got != tt.want {
				t.Errorf("FormatLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "error.log")
	f := NewFile(path)

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for _, msg := range []string{"one", "two"} {
		if err := f.Record(types.Incident{Time: at, Kind: "diagnostic", Message: msg}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}
	if !strings.HasSuffix(lines[1], "diagnostic two") {
		t.Errorf("unexpected second line %q", lines[1])
	}
	if f.Path() != path {
		t.Errorf("Path() = %q", f.Path())
	}
}

func TestFileUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFile(filepath.Join(blocker, "error.log"))
	if err := f.Record(types.Incident{Kind: "x"}); err == nil {
		t.Error("expected error when the log directory is a file")
	}
}

func TestMultiRecordsEverywhere(t *testing.T) {
	first := testutil.NewMockRecorder()
	second := testutil.NewMockRecorder()
	first.SetError(errors.New("db locked"))

	m := Multi{first, nil, second}
	err := m.Record(types.Incident{Kind: "diagnostic", Message: "m"})
	if err == nil || !strings.Contains(err.Error(), "db locked") {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(second.GetIncidents()) != 1 {
		t.Error("a failing recorder must not stop the others")
	}
}
