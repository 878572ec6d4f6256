package platform

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)

	tests := []struct {
		name    string
		value   string
		loc     *time.Location
		want    time.Time
		wantErr bool
	}{
		{
			name:  "rfc3339 keeps offset",
			value: "2024-03-01T10:00:00+08:00",
			loc:   time.UTC,
			want:  time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name:  "naive space separated in utc",
			value: "2024-03-01 10:00:00",
			want:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "naive in configured zone",
			value: "2024-03-01 10:00:00",
			loc:   shanghai,
			want:  time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name:  "fractional seconds",
			value: "2024-03-01T10:00:00.5",
			loc:   time.UTC,
			want:  time.Date(2024, 3, 1, 10, 0, 0, 500000000, time.UTC),
		},
		{
			name:  "dotted date",
			value: "2024.11.20",
			loc:   time.UTC,
			want:  time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC),
		},
		{name: "empty", value: "  ", wantErr: true},
		{name: "garbage", value: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.value, tt.loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromEpoch(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if got := FromEpoch(want.Unix()); !got.Equal(want) {
		t.Errorf("FromEpoch(seconds) = %v, want %v", got, want)
	}
	if got := FromEpoch(want.UnixMilli()); !got.Equal(want) {
		t.Errorf("FromEpoch(millis) = %v, want %v", got, want)
	}
}
