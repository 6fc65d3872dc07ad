package report

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func rows(rates ...float64) []RateRow {
	out := make([]RateRow, len(rates))
	for i, r := range rates {
		out[i] = RateRow{PersonID: string(rune('a' + i)), Rate: r}
	}
	return out
}

func TestAnalyzeFlagsOutlier(t *testing.T) {
	in := rows(0.95, 0.92, 0.94, 0.96, 0.93, 0.10)
	sum := Analyze(in, 2)

	var flagged []string
	for _, r := range sum.Rows {
		if r.Anomalous {
			flagged = append(flagged, r.PersonID)
		}
	}
	require.Equal(t, []string{"f"}, flagged, "only the collapsed rate is anomalous")
}

func TestAnalyzeUniformRates(t *testing.T) {
	sum := Analyze(rows(0.9, 0.9, 0.9), 2)
	require.Equal(t, 0.9, sum.Mean)
	require.Zero(t, sum.StdDev)
	for _, r := range sum.Rows {
		require.False(t, r.Anomalous)
	}
}

func TestAnalyzeSmallInputs(t *testing.T) {
	require.Empty(t, Analyze(nil, 2).Rows)

	sum := Analyze(rows(0.5), 2)
	require.Len(t, sum.Rows, 1)
	require.False(t, sum.Rows[0].Anomalous, "a single row is never anomalous")
}

func TestAnalyzeDefaultThreshold(t *testing.T) {
	a := Analyze(rows(0.95, 0.92, 0.94, 0.96, 0.93, 0.10), 0)
	b := Analyze(rows(0.95, 0.92, 0.94, 0.96, 0.93, 0.10), 2)
	require.Equal(t, b, a)
}
