package forum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		literal string
		ok      bool
	}{
		{name: "zulu", literal: "2024-05-01T03:00:00Z", ok: true},
		{name: "colon offset", literal: "2024-05-01T10:00:00+07:00", ok: true},
		{name: "xenforo offset", literal: "2024-05-01T10:00:00+0700", ok: true},
		{name: "padded", literal: "  2024-05-01T03:00:00+00:00 ", ok: true},
		{name: "empty", literal: "", ok: false},
		{name: "garbage", literal: "yesterday", ok: false},
		{name: "date only", literal: "2024-05-01", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseTimestamp(tt.literal)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.True(t, got.Equal(want), "got %v", got)
			} else {
				require.True(t, got.IsZero())
			}
		})
	}
}
