package record

import "sort"

// Query is a conjunctive equality filter; empty fields pass all records.
type Query struct {
	Subject string
	Date    string
	Month   string
}

// Empty reports whether no filter field is set.
func (q Query) Empty() bool {
	return q.Subject == "" && q.Date == "" && q.Month == ""
}

// Filter returns the records matching every set field of q.
func Filter(recs []AttendanceRecord, q Query) []AttendanceRecord {
	var out []AttendanceRecord
	for _, r := range recs {
		if q.Subject != "" && r.Subject != q.Subject {
			continue
		}
		if q.Date != "" && r.Date != q.Date {
			continue
		}
		if q.Month != "" && r.Month != q.Month {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortedView returns a copy ordered by (date, time) descending, most
// recent first. Both fields use fixed-width layouts so byte order is
// chronological order.
func SortedView(recs []AttendanceRecord) []AttendanceRecord {
	out := make([]AttendanceRecord, len(recs))
	copy(out, recs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].Time > out[j].Time
	})
	return out
}

// Subjects returns the unique subjects present, sorted.
func Subjects(recs []AttendanceRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range recs {
		if !seen[r.Subject] {
			seen[r.Subject] = true
			out = append(out, r.Subject)
		}
	}
	sort.Strings(out)
	return out
}
