package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func newBufferFormatter(format Format) (*Formatter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewFormatter(WithWriter(&buf), WithFormat(format), WithColor(false)), &buf
}

func TestNewFormatter(t *testing.T) {
	f := NewFormatter()
	if f.format != FormatText {
		t.Errorf("expected format %v, got %v", FormatText, f.format)
	}
	if !f.colorEnabled {
		t.Error("expected color to be enabled by default")
	}

	f = NewFormatter(WithFormat(FormatJSON), WithColor(false))
	if f.Format() != FormatJSON {
		t.Errorf("expected format %v, got %v", FormatJSON, f.Format())
	}
	if f.colorEnabled {
		t.Error("expected color to be disabled")
	}
}

func TestFormatter_Println(t *testing.T) {
	f, buf := newBufferFormatter(FormatText)

	if err := f.Println("hello %s", "world"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.String(); got != "hello world\n" {
		t.Errorf("expected 'hello world\\n', got %q", got)
	}
}

func TestFormatter_Colorize(t *testing.T) {
	f := NewFormatter(WithColor(true))
	got := f.Colorize("test", ColorRed)
	if !strings.HasPrefix(got, string(ColorRed)) || !strings.HasSuffix(got, string(ColorReset)) {
		t.Errorf("expected colored text, got %q", got)
	}

	f = NewFormatter(WithColor(false))
	if got := f.Colorize("test", ColorRed); got != "test" {
		t.Errorf("expected plain text, got %q", got)
	}
}

func TestFormatter_Messages(t *testing.T) {
	tests := []struct {
		name   string
		print  func(f *Formatter) error
		prefix string
	}{
		{"success", func(f *Formatter) error { return f.Success("done %d", 1) }, "✓ done 1"},
		{"error", func(f *Formatter) error { return f.Error("failed") }, "✗ failed"},
		{"warning", func(f *Formatter) error { return f.Warning("careful") }, "⚠ careful"},
		{"info", func(f *Formatter) error { return f.Info("note") }, "ℹ note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, buf := newBufferFormatter(FormatText)
			if err := tt.print(f); err != nil {
				t.Fatal(err)
			}
			if got := strings.TrimSpace(buf.String()); got != tt.prefix {
				t.Errorf("got %q, want %q", got, tt.prefix)
			}
		})
	}
}

func TestFormatter_HeaderAndItem(t *testing.T) {
	f, buf := newBufferFormatter(FormatText)

	f.Header("Sync state")
	f.Item("Location", "/tmp/state.json")

	want := "Sync state\n──────────\n  Location: /tmp/state.json\n"
	if got := buf.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatter_Table(t *testing.T) {
	f, buf := newBufferFormatter(FormatText)

	err := f.Table(TableData{
		Columns: []TableColumn{
			{Header: "STATUS"},
			{Header: "MOVED", Align: AlignRight},
		},
		Rows: [][]string{
			{"completed", "3"},
			{"failed", "12"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"STATUS     MOVED",
		"---------  -----",
		"completed      3",
		"failed        12",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), buf.String())
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestFormatter_TableNoColumns(t *testing.T) {
	f, buf := newBufferFormatter(FormatText)
	if err := f.Table(TableData{}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestFormatter_JSON(t *testing.T) {
	f, buf := newBufferFormatter(FormatJSON)

	if err := f.JSON(map[string]int{"transferred": 2}); err != nil {
		t.Fatal(err)
	}

	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["transferred"] != 2 {
		t.Errorf("got %v", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" JSON ", FormatJSON, false},
		{"text", FormatText, false},
		{"", FormatText, false},
		{"yaml", FormatText, true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTimestampAndDuration(t *testing.T) {
	if got := Timestamp(time.Time{}); got != "never" {
		t.Errorf("Timestamp(zero) = %q", got)
	}
	ts := time.Date(2024, 11, 20, 6, 0, 0, 0, time.UTC)
	if got := Timestamp(ts); got != "2024-11-20T06:00:00Z" {
		t.Errorf("Timestamp() = %q", got)
	}

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{1500 * time.Microsecond, "2ms"},
		{3*time.Second + 420*time.Millisecond, "3.4s"},
	}
	for _, tt := range tests {
		if got := Duration(tt.in); got != tt.want {
			t.Errorf("Duration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
