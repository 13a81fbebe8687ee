package export

import (
	"errors"
	"fmt"
	"time"

	"qrattend/internal/record"
)

// Format of an export file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no attendance records to export")

// Column order shared by all three formats.
var columns = []string{"Subject", "Student Name", "Date", "Time", "Month"}

// Result is a finished export. FellBack is set when the requested
// format's writer failed and the data is the CSV fallback instead.
type Result struct {
	Data     []byte
	Format   Format
	Filename string
	MIME     string
	FellBack bool
}

// Exporter serializes record sets. The xlsx/pdf writers are fields so a
// failing library can be simulated; a writer failure degrades to CSV.
type Exporter struct {
	writeXLSX func([]record.AttendanceRecord) ([]byte, error)
	writePDF  func([]record.AttendanceRecord) ([]byte, error)
	now       func() time.Time
}

// New creates an exporter with the real writers.
func New() *Exporter {
	return &Exporter{
		writeXLSX: writeXLSX,
		writePDF:  writePDF,
		now:       time.Now,
	}
}

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatXLSX, FormatPDF:
		return Format(s), nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// Export serializes recs in the requested format. filtered selects the
// attendance_filtered_ filename prefix. xlsx/pdf fall back to CSV under
// the derived CSV filename when their writer fails; the whole operation
// errors only if the CSV fallback fails too.
func (e *Exporter) Export(recs []record.AttendanceRecord, format Format, filtered bool) (Result, error) {
	if len(recs) == 0 {
		return Result{}, ErrNoRecords
	}

	switch format {
	case FormatCSV:
		return Result{
			Data:     writeCSV(recs),
			Format:   FormatCSV,
			Filename: Filename(FormatCSV, filtered, e.now()),
			MIME:     "text/csv; charset=utf-8",
		}, nil
	case FormatXLSX:
		data, err := e.writeXLSX(recs)
		if err != nil {
			return e.fallback(recs, filtered), nil
		}
		return Result{
			Data:     data,
			Format:   FormatXLSX,
			Filename: Filename(FormatXLSX, filtered, e.now()),
			MIME:     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		}, nil
	case FormatPDF:
		data, err := e.writePDF(recs)
		if err != nil {
			return e.fallback(recs, filtered), nil
		}
		return Result{
			Data:     data,
			Format:   FormatPDF,
			Filename: Filename(FormatPDF, filtered, e.now()),
			MIME:     "application/pdf",
		}, nil
	default:
		return Result{}, fmt.Errorf("unknown export format %q", format)
	}
}

func (e *Exporter) fallback(recs []record.AttendanceRecord, filtered bool) Result {
	return Result{
		Data:     writeCSV(recs),
		Format:   FormatCSV,
		Filename: Filename(FormatCSV, filtered, e.now()),
		MIME:     "text/csv; charset=utf-8",
		FellBack: true,
	}
}

// Filename derives attendance_records_<date>.<ext> or
// attendance_filtered_<date>.<ext>.
func Filename(format Format, filtered bool, now time.Time) string {
	kind := "records"
	if filtered {
		kind = "filtered"
	}
	return fmt.Sprintf("attendance_%s_%s.%s", kind, now.Format("2006-01-02"), format)
}
