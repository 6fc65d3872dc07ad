package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseQRJSON(t *testing.T) {
	p := ParseQR(`{"student_id":"c42","exam_type":"midterm","answers":"ABCD"}`)
	require.True(t, p.Parsed)
	require.Equal(t, "c42", p.StudentID)
	require.Equal(t, "midterm", p.ExamType)
	require.Equal(t, "ABCD", p.Answers)
	require.Equal(t, `{"student_id":"c42","exam_type":"midterm","answers":"ABCD"}`, p.Raw)
}

func TestParseQRRawFallback(t *testing.T) {
	for _, raw := range []string{"c42|present", "{not json", ""} {
		p := ParseQR(raw)
		require.False(t, p.Parsed)
		require.Equal(t, raw, p.Raw)
	}
}

func TestDebounceSamePayload(t *testing.T) {
	d := NewDebouncer(2 * time.Second)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	require.True(t, d.Allow("c42"))

	now = base.Add(1500 * time.Millisecond)
	require.False(t, d.Allow("c42"), "repeat inside the cool-down must be dropped")

	now = base.Add(2100 * time.Millisecond)
	require.True(t, d.Allow("c42"), "repeat after the cool-down registers again")
}

func TestDebounceDistinctPayloads(t *testing.T) {
	d := NewDebouncer(2 * time.Second)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	require.True(t, d.Allow("c1"))
	require.True(t, d.Allow("c2"), "different payloads never suppress each other")
}
