package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
)

var utilizationHeader = []string{"user_id", "name", "email", "job_title", "average_percent", "peak_percent", "over_allocated"}

func WriteUtilizationCSV(w io.Writer, report UtilizationReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(utilizationHeader); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := cw.Write([]string{
			row.UserID,
			row.Name,
			row.Email,
			row.JobTitle,
			strconv.FormatFloat(row.Average, 'f', 1, 64),
			strconv.Itoa(row.Peak),
			strconv.FormatBool(row.Over),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteUtilizationPDF(w io.Writer, report UtilizationReport) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Utilization report", false)
	pdf.SetCreator("Workforce", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Utilization report")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", report.From.Format("2006-01-02"), report.To.Format("2006-01-02")))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Generated: %s", report.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Team average: %.1f%%", report.TeamAverage))
	pdf.Ln(10)

	widths := []float64{60, 70, 25, 25}
	headers := []string{"Name", "Email", "Average %", "Peak %"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, row := range report.Rows {
		if row.Over {
			pdf.SetTextColor(180, 0, 0)
		} else {
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.CellFormat(widths[0], 7, tr(row.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, tr(row.Email), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprintf("%.1f", row.Average), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, strconv.Itoa(row.Peak), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetTextColor(0, 0, 0)
	return pdf.Output(w)
}
