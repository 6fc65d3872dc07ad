package scan

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"rotcunit/internal/metrics"
)

// QRPayload is a decoded QR frame. When the raw text is a JSON object the
// known fields are filled in; otherwise the payload degrades to opaque raw
// text. Raw always carries the original text because the server does its own
// parsing on submission.
type QRPayload struct {
	Raw       string `json:"raw"`
	Parsed    bool   `json:"parsed"`
	StudentID string `json:"student_id,omitempty"`
	ExamType  string `json:"exam_type,omitempty"`
	Answers   string `json:"answers,omitempty"`
}

// ParseQR decodes a QR frame, falling back to raw text. Never fails.
func ParseQR(raw string) QRPayload {
	p := QRPayload{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return p
	}
	var fields struct {
		StudentID string `json:"student_id"`
		ExamType  string `json:"exam_type"`
		Answers   string `json:"answers"`
	}
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return p
	}
	p.Parsed = true
	p.StudentID = fields.StudentID
	p.ExamType = fields.ExamType
	p.Answers = fields.Answers
	return p
}

// Debouncer drops repeats of the same payload arriving inside the cool-down
// window, so camera frame repeats register a person once.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewDebouncer creates a debouncer; window <= 0 defaults to 2s.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Debouncer{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether the payload should be processed, recording it as
// seen when it is.
func (d *Debouncer) Allow(payload string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if prev, ok := d.last[payload]; ok && now.Sub(prev) < d.window {
		metrics.ScansDebounced.Inc()
		return false
	}
	d.last[payload] = now
	d.prune(now)
	metrics.ScansAccepted.Inc()
	return true
}

// prune drops entries old enough to never suppress again. Caller holds mu.
func (d *Debouncer) prune(now time.Time) {
	if len(d.last) < 1024 {
		return
	}
	for payload, seen := range d.last {
		if now.Sub(seen) >= d.window {
			delete(d.last, payload)
		}
	}
}
