package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rotcunit/internal/model"
)

func TestWriteRosterCSV(t *testing.T) {
	members := []model.RosterMember{
		{ID: "c1", Type: model.PersonCadet, LastName: "Smith", FirstName: "Juan", Rank: "CDT"},
		{ID: "c2", Type: model.PersonCadet, LastName: "Reyes", FirstName: "Maria", Rank: "CDT"},
	}
	records := []model.AttendanceRecord{
		{TrainingDayID: "d1", PersonID: "c1", PersonType: model.PersonCadet, Status: model.StatusPresent, TimeIn: "08:00AM", TimeOut: "12:00PM"},
		{TrainingDayID: "d1", PersonID: "c2", PersonType: model.PersonCadet, Status: model.StatusAbsent, Remarks: "sick call"},
		{TrainingDayID: "d1", PersonID: "gone", PersonType: model.PersonCadet, Status: model.StatusUnmarked},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRosterCSV(&buf, records, members))

	out := strings.TrimRight(buf.String(), "\n")
	lines := strings.Split(out, "\n")
	require.Len(t, lines, len(records)+1, "header plus one line per record")

	// Every row parses to the same column count as the header.
	parsed, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	for _, row := range parsed {
		require.Len(t, row, len(parsed[0]))
	}

	require.Contains(t, lines[1], `"Smith, Juan"`, "comma-bearing names are quoted")
	require.Equal(t, "ID,Name,Role/Rank,Status,Time In,Time Out,Remarks", lines[0])

	// Unknown person falls back to the bare id.
	require.True(t, strings.HasPrefix(lines[3], "gone,gone,"))
}

func TestWriteRosterCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRosterCSV(&buf, nil, nil))
	require.Equal(t, "ID,Name,Role/Rank,Status,Time In,Time Out,Remarks\n", buf.String())
}
