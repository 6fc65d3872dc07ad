// Package scan turns recognized sheet text and decoded QR frames into
// attendance mark proposals. Nothing here writes to the server: reconcilers
// only propose candidates, and a separate confirmation step submits them
// through the same path as manual marking.
package scan

import (
	"regexp"
	"strings"

	"rotcunit/internal/model"
)

// Candidate is one proposed (person, status, times) match awaiting human
// confirmation.
type Candidate struct {
	Person         model.RosterMember `json:"person"`
	Status         model.Status       `json:"status"`
	TimeIn         string             `json:"time_in,omitempty"`
	TimeOut        string             `json:"time_out,omitempty"`
	Line           string             `json:"line"`
	CourseMismatch bool               `json:"course_mismatch,omitempty"`
	// LowConfidenceTimes is set when the times were inferred from token
	// order instead of an IN/OUT label and should be double-checked.
	LowConfidenceTimes bool `json:"low_confidence_times,omitempty"`
}

var (
	timeRe     = regexp.MustCompile(`(?i)\b(?:1[0-2]|0?[1-9]):[0-5][0-9]\s*(?:AM|PM)\b`)
	inLabelRe  = regexp.MustCompile(`(?i)\b(?:TIME[\s-]*)?IN\b[:.\s-]*$`)
	outLabelRe = regexp.MustCompile(`(?i)\b(?:TIME[\s-]*)?OUT\b[:.\s-]*$`)
)

// ReconcileSheet matches recognized text from a physical attendance sheet
// against the roster. For each member it looks for a line carrying the last
// name, narrowed by first name or rank when several lines qualify. Status
// defaults to present and is overridden by absent/late/excused keywords on
// the matched line. Duplicate matches for one person keep the first.
func ReconcileSheet(text string, roster []model.RosterMember) []Candidate {
	lines := splitLines(text)
	var out []Candidate
	seen := make(map[string]struct{})

	for _, member := range roster {
		line, ok := bestLine(lines, member)
		if !ok {
			continue
		}
		if _, dup := seen[member.ID]; dup {
			continue
		}
		seen[member.ID] = struct{}{}

		cand := Candidate{
			Person: member,
			Status: statusFromLine(line),
			Line:   line,
		}
		cand.TimeIn, cand.TimeOut, cand.LowConfidenceTimes = extractTimes(line)
		if member.Course != "" && !containsFold(line, member.Course) {
			cand.CourseMismatch = true
		}
		out = append(out, cand)
	}
	return out
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	return lines
}

// bestLine finds the line for a roster member: last-name substring first,
// narrowed to lines that also carry the first name or rank when possible.
func bestLine(lines []string, m model.RosterMember) (string, bool) {
	var coarse []string
	for _, l := range lines {
		if containsFold(l, m.LastName) {
			coarse = append(coarse, l)
		}
	}
	if len(coarse) == 0 {
		return "", false
	}
	for _, l := range coarse {
		if (m.FirstName != "" && containsFold(l, m.FirstName)) ||
			(m.Rank != "" && containsFold(l, m.Rank)) {
			return l, true
		}
	}
	return coarse[0], true
}

func statusFromLine(line string) model.Status {
	switch {
	case containsFold(line, "absent"):
		return model.StatusAbsent
	case containsFold(line, "late"):
		return model.StatusLate
	case containsFold(line, "excused"):
		return model.StatusExcused
	default:
		return model.StatusPresent
	}
}

// extractTimes pulls up to two 12-hour time tokens from the line. A token
// directly preceded by an IN or OUT label is assigned to that slot; leftover
// unlabeled tokens fall back to positional order (first in, second out) and
// the candidate is flagged low-confidence.
func extractTimes(line string) (timeIn, timeOut string, lowConfidence bool) {
	locs := timeRe.FindAllStringIndex(line, -1)
	if len(locs) == 0 {
		return "", "", false
	}

	var unlabeled []string
	for _, loc := range locs {
		token := normalizeTime(line[loc[0]:loc[1]])
		prefix := line[:loc[0]]
		switch {
		case inLabelRe.MatchString(prefix) && timeIn == "":
			timeIn = token
		case outLabelRe.MatchString(prefix) && timeOut == "":
			timeOut = token
		default:
			unlabeled = append(unlabeled, token)
		}
	}

	for _, token := range unlabeled {
		switch {
		case timeIn == "":
			timeIn = token
			lowConfidence = true
		case timeOut == "":
			timeOut = token
			lowConfidence = true
		}
	}
	return timeIn, timeOut, lowConfidence
}

func normalizeTime(token string) string {
	return strings.ToUpper(strings.ReplaceAll(token, " ", ""))
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
