package session

import (
	"strings"
	"time"
)

// AttendanceEntry records the first time a participant was observed.
type AttendanceEntry struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// Attendance is the "who was ever present" superset. Entries are never
// removed on disconnect: leaving does not undo having attended.
type Attendance struct {
	order   []string
	entries map[string]AttendanceEntry
}

// NewAttendance creates an empty tracker.
func NewAttendance() *Attendance {
	return &Attendance{entries: make(map[string]AttendanceEntry)}
}

// Observe records the user on first sight; later observations only
// backfill a missing name. Always safe to call repeatedly.
func (a *Attendance) Observe(userID, name string, at time.Time) {
	if userID == "" {
		return
	}
	if e, ok := a.entries[userID]; ok {
		if e.Name == "" && name != "" {
			e.Name = name
			a.entries[userID] = e
		}
		return
	}
	a.entries[userID] = AttendanceEntry{UserID: userID, Name: name, JoinedAt: at}
	a.order = append(a.order, userID)
}

// Entries returns entries in first-seen order.
func (a *Attendance) Entries() []AttendanceEntry {
	out := make([]AttendanceEntry, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.entries[id])
	}
	return out
}

// Len returns the number of distinct participants observed.
func (a *Attendance) Len() int { return len(a.entries) }

// CSV serializes the attendance sheet. hostID marks which entry gets
// the Host role; everyone else is a Student.
func (a *Attendance) CSV(hostID string) string {
	var b strings.Builder
	b.WriteString("Name, Role, Join Time, Join Date, Status\n")
	write := func(e AttendanceEntry, role string) {
		name := e.Name
		if name == "" {
			name = e.UserID
		}
		b.WriteString(escapeCSV(name))
		b.WriteString("," + role)
		b.WriteString("," + e.JoinedAt.Format("15:04:05"))
		b.WriteString("," + e.JoinedAt.Format("2006-01-02"))
		b.WriteString(",Present\n")
	}
	// Host row first, matching the exported sheet layout.
	for _, id := range a.order {
		if id == hostID {
			write(a.entries[id], "Host")
		}
	}
	for _, id := range a.order {
		if id != hostID {
			write(a.entries[id], "Student")
		}
	}
	return b.String()
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
