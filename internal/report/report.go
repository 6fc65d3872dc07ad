// Package report computes unit-level attendance analytics: per-person
// attendance rates and mean/standard-deviation anomaly flags over them.
package report

import "math"

// RateRow is one person's attendance rate over a reporting window.
type RateRow struct {
	PersonID string  `json:"person_id"`
	Name     string  `json:"name"`
	Rate     float64 `json:"rate"`
	// Anomalous is set when the rate deviates more than the threshold
	// number of standard deviations from the unit mean.
	Anomalous bool    `json:"anomalous"`
	Deviation float64 `json:"deviation"`
}

// Summary aggregates a reporting window.
type Summary struct {
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"`
	Rows   []RateRow `json:"rows"`
}

// Analyze flags rows whose rate sits more than threshold standard deviations
// from the mean. A threshold <= 0 defaults to 2. With fewer than two rows
// nothing can be anomalous.
func Analyze(rows []RateRow, threshold float64) Summary {
	if threshold <= 0 {
		threshold = 2
	}
	out := Summary{Rows: make([]RateRow, len(rows))}
	copy(out.Rows, rows)
	if len(rows) == 0 {
		return out
	}

	var sum float64
	for _, r := range rows {
		sum += r.Rate
	}
	out.Mean = sum / float64(len(rows))

	var sq float64
	for _, r := range rows {
		d := r.Rate - out.Mean
		sq += d * d
	}
	out.StdDev = math.Sqrt(sq / float64(len(rows)))

	if len(rows) < 2 || out.StdDev == 0 {
		return out
	}
	for i := range out.Rows {
		dev := (out.Rows[i].Rate - out.Mean) / out.StdDev
		out.Rows[i].Deviation = dev
		out.Rows[i].Anomalous = math.Abs(dev) > threshold
	}
	return out
}
