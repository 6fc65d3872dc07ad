package grading

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rotcunit/internal/model"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		counts map[model.Status]int
		want   float64
	}{
		{"all present", map[model.Status]int{model.StatusPresent: 10}, 100},
		{"half absent", map[model.Status]int{model.StatusPresent: 5, model.StatusAbsent: 5}, 50},
		{"late counts half", map[model.Status]int{model.StatusLate: 4}, 50},
		{"excused excluded", map[model.Status]int{model.StatusPresent: 3, model.StatusExcused: 7}, 100},
		{"nothing marked", map[model.Status]int{}, 0},
		{"only excused", map[model.Status]int{model.StatusExcused: 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Score(tt.counts), 1e-9)
		})
	}
}
