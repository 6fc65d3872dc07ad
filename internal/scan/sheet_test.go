package scan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rotcunit/internal/model"
)

func member(id, last, first, rank, course string) model.RosterMember {
	return model.RosterMember{
		ID:        id,
		Type:      model.PersonCadet,
		LastName:  last,
		FirstName: first,
		Rank:      rank,
		Course:    course,
	}
}

func TestReconcileSheetSingleMatch(t *testing.T) {
	roster := []model.RosterMember{member("c1", "Smith", "Juan", "CDT", "")}
	cands := ReconcileSheet("Present: CDT Smith, Juan 08:00AM 12:00PM", roster)

	require.Len(t, cands, 1)
	c := cands[0]
	require.Equal(t, "c1", c.Person.ID)
	require.Equal(t, model.StatusPresent, c.Status)
	require.Equal(t, "08:00AM", c.TimeIn)
	require.Equal(t, "12:00PM", c.TimeOut)
	require.True(t, c.LowConfidenceTimes, "unlabeled times are positional guesses")
}

func TestReconcileSheetStatusKeywords(t *testing.T) {
	roster := []model.RosterMember{
		member("c1", "Smith", "Juan", "CDT", ""),
		member("c2", "Reyes", "Maria", "CDT", ""),
		member("c3", "Cruz", "Ana", "CDT", ""),
	}
	text := "CDT Smith, Juan - ABSENT\nCDT Reyes, Maria late 09:15AM\nCDT Cruz, Ana excused"
	cands := ReconcileSheet(text, roster)

	require.Len(t, cands, 3)
	byID := map[string]Candidate{}
	for _, c := range cands {
		byID[c.Person.ID] = c
	}
	require.Equal(t, model.StatusAbsent, byID["c1"].Status)
	require.Equal(t, model.StatusLate, byID["c2"].Status)
	require.Equal(t, "09:15AM", byID["c2"].TimeIn)
	require.Equal(t, model.StatusExcused, byID["c3"].Status)
}

func TestReconcileSheetLabeledTimes(t *testing.T) {
	roster := []model.RosterMember{member("c1", "Smith", "Juan", "CDT", "")}
	cands := ReconcileSheet("CDT Smith, Juan IN: 07:45AM OUT: 11:30AM", roster)

	require.Len(t, cands, 1)
	require.Equal(t, "07:45AM", cands[0].TimeIn)
	require.Equal(t, "11:30AM", cands[0].TimeOut)
	require.False(t, cands[0].LowConfidenceTimes)
}

func TestReconcileSheetNarrowsByFirstName(t *testing.T) {
	roster := []model.RosterMember{
		member("c1", "Garcia", "Pedro", "CDT", ""),
		member("c2", "Garcia", "Luis", "CDT", ""),
	}
	text := "Garcia, Pedro present\nGarcia, Luis absent"
	cands := ReconcileSheet(text, roster)

	require.Len(t, cands, 2)
	byID := map[string]Candidate{}
	for _, c := range cands {
		byID[c.Person.ID] = c
	}
	require.Equal(t, model.StatusPresent, byID["c1"].Status)
	require.Equal(t, model.StatusAbsent, byID["c2"].Status)
}

func TestReconcileSheetCourseMismatch(t *testing.T) {
	roster := []model.RosterMember{member("c1", "Smith", "Juan", "CDT", "MS-2")}
	cands := ReconcileSheet("CDT Smith, Juan present", roster)

	require.Len(t, cands, 1)
	require.True(t, cands[0].CourseMismatch)

	cands = ReconcileSheet("CDT Smith, Juan MS-2 present", roster)
	require.Len(t, cands, 1)
	require.False(t, cands[0].CourseMismatch)
}

func TestReconcileSheetNoMatches(t *testing.T) {
	roster := []model.RosterMember{member("c1", "Smith", "Juan", "CDT", "")}
	cands := ReconcileSheet("nothing recognizable here", roster)
	require.Empty(t, cands)
}

func TestReconcileSheetDedupesByPerson(t *testing.T) {
	roster := []model.RosterMember{member("c1", "Smith", "Juan", "CDT", "")}
	text := "CDT Smith, Juan present 08:00AM\nCDT Smith, Juan absent"
	cands := ReconcileSheet(text, roster)

	require.Len(t, cands, 1)
	require.Equal(t, model.StatusPresent, cands[0].Status)
}
