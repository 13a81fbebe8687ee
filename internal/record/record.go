package record

// Layouts for the date-keyed fields of a record.
const (
	DateLayout  = "2006-01-02"
	TimeLayout  = "15:04:05"
	MonthLayout = "2006-01"
)

// AttendanceRecord is one accepted scan. JSON field names follow the
// stored wire format.
type AttendanceRecord struct {
	ID          string `json:"id,omitempty"`
	Subject     string `json:"subject"`
	StudentName string `json:"name"`
	Date        string `json:"date"`  // YYYY-MM-DD
	Time        string `json:"time"`  // HH:MM:SS
	Month       string `json:"month"` // YYYY-MM, derived from Date at commit
	ScannedAt   int64  `json:"scannedAt"`   // epoch ms of intake
	QRTimestamp int64  `json:"qrTimestamp"` // epoch ms copied from the payload
}

// MatchesTuple reports whether two records agree on the legacy
// identifying tuple. The tuple is not unique: two records produced by
// identical-looking scans are indistinguishable, and tuple-based deletes
// remove all of them.
func (r AttendanceRecord) MatchesTuple(o AttendanceRecord) bool {
	return r.Subject == o.Subject &&
		r.StudentName == o.StudentName &&
		r.Time == o.Time &&
		r.Date == o.Date &&
		r.Month == o.Month
}
