// Package export renders attendance rosters as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"rotcunit/internal/model"
)

var header = []string{"ID", "Name", "Role/Rank", "Status", "Time In", "Time Out", "Remarks"}

// WriteRosterCSV streams one row per record, preceded by the header. Names
// render as "Last, First", which the encoder quotes. Records for people no
// longer in members fall back to the bare person id.
func WriteRosterCSV(w io.Writer, records []model.AttendanceRecord, members []model.RosterMember) error {
	byID := make(map[string]model.RosterMember, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		name, rank := rec.PersonID, ""
		if m, ok := byID[rec.PersonID]; ok {
			name, rank = m.FullName(), m.Rank
		}
		row := []string{
			rec.PersonID,
			name,
			rank,
			string(rec.Status),
			rec.TimeIn,
			rec.TimeOut,
			rec.Remarks,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row for %s: %w", rec.PersonID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
