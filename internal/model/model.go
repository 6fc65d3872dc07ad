package model

import "time"

// PersonType distinguishes the two roster populations.
type PersonType string

const (
	PersonCadet PersonType = "cadet"
	PersonStaff PersonType = "staff"
)

// Valid reports whether t is a known person type.
func (t PersonType) Valid() bool {
	return t == PersonCadet || t == PersonStaff
}

// Status is the attendance state of one person on one training day.
type Status string

const (
	StatusPresent  Status = "present"
	StatusAbsent   Status = "absent"
	StatusLate     Status = "late"
	StatusExcused  Status = "excused"
	StatusUnmarked Status = "unmarked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused, StatusUnmarked:
		return true
	}
	return false
}

// TrainingDay is a scheduled unit activity against which attendance is recorded.
type TrainingDay struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttendanceRecord is one person's state for one training day. Exactly one
// record exists per (training day, person); a day's roster is snapshotted as
// explicit unmarked rows when the day is created, so a missing row means the
// person was not enrolled at that time.
type AttendanceRecord struct {
	TrainingDayID string     `json:"training_day_id"`
	PersonID      string     `json:"person_id"`
	PersonType    PersonType `json:"person_type"`
	Status        Status     `json:"status"`
	TimeIn        string     `json:"time_in,omitempty"`
	TimeOut       string     `json:"time_out,omitempty"`
	Remarks       string     `json:"remarks,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Key identifies the record within its day's roster.
func (r AttendanceRecord) Key() string {
	return r.TrainingDayID + "/" + r.PersonID
}

// Cadet is an enrolled cadet profile.
type Cadet struct {
	ID        string    `json:"id"`
	LastName  string    `json:"last_name"`
	FirstName string    `json:"first_name"`
	Rank      string    `json:"rank"`
	Course    string    `json:"course,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Staff is a cadre/staff profile.
type Staff struct {
	ID        string    `json:"id"`
	LastName  string    `json:"last_name"`
	FirstName string    `json:"first_name"`
	Rank      string    `json:"rank"`
	Role      string    `json:"role,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// RosterMember is the projection of a cadet or staff profile that scan
// matching and exports work against.
type RosterMember struct {
	ID        string     `json:"id"`
	Type      PersonType `json:"type"`
	LastName  string     `json:"last_name"`
	FirstName string     `json:"first_name"`
	Rank      string     `json:"rank"`
	Course    string     `json:"course,omitempty"`
}

// FullName renders "Last, First" the way printed rosters do.
func (m RosterMember) FullName() string {
	return m.LastName + ", " + m.FirstName
}

// Announcement is a unit-wide message posted by staff.
type Announcement struct {
	ID        string     `json:"id"`
	AuthorID  string     `json:"author_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	PostedAt  time.Time  `json:"posted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// MeritEntry is one line of the merit/demerit ledger.
type MeritEntry struct {
	ID       string    `json:"id"`
	CadetID  string    `json:"cadet_id"`
	Points   int       `json:"points"`
	Reason   string    `json:"reason"`
	IssuedBy string    `json:"issued_by"`
	IssuedAt time.Time `json:"issued_at"`
}
