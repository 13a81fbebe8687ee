package export

import (
	"strings"

	"qrattend/internal/record"
)

// writeCSV serializes records in the fixed CSV layout: unquoted header
// row, every data field double-quoted. This always succeeds, which is
// why it is the fallback for the other formats.
func writeCSV(recs []record.AttendanceRecord) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(columns, ","))
	b.WriteByte('\n')
	for _, r := range recs {
		fields := []string{r.Subject, r.StudentName, r.Date, r.Time, r.Month}
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(f, `"`, `""`))
			b.WriteByte('"')
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
