package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"qrattend/internal/record"
)

// writePDF builds a titled table with a footer row count.
func writePDF(recs []record.AttendanceRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(40, 40, 40)
	pdf.Cell(0, 8, "Attendance Records")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, "Exported on: "+time.Now().Format("2006-01-02"))
	pdf.Ln(10)

	widths := []float64{45, 45, 30, 30, 30}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(25, 118, 210)
	pdf.SetTextColor(255, 255, 255)
	for i, name := range columns {
		pdf.CellFormat(widths[i], 7, name, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(40, 40, 40)
	for row, r := range recs {
		fill := row%2 == 1
		pdf.SetFillColor(245, 245, 245)
		values := []string{r.Subject, r.StudentName, r.Date, r.Time, r.Month}
		for i, v := range values {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, fmt.Sprintf("Total Records: %d", len(recs)))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
