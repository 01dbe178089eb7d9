// Package report собирает PDF-отчёт по согласованию: сводка, хронология
// просмотров и ответ клиента. Отчёт студия прикладывает к актам и
// договорам как свидетельство согласования.
//
// Встроенные шрифты PDF не покрывают кириллицу, поэтому текст отчёта
// на английском.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// TimelineEntry представляет строку хронологии событий.
type TimelineEntry struct {
	At    time.Time
	Event string
}

// Data содержит входные данные отчёта.
type Data struct {
	OrgName       string
	ProjectName   string
	ClientName    string
	Title         string
	Status        string
	Version       int
	CreatedAt     time.Time
	ExpiresAt     time.Time
	SentAt        *time.Time
	RespondedAt   *time.Time
	ResponseNotes string
	ViewCount     int
	FirstViewedAt *time.Time
	LastViewedAt  *time.Time
	Timeline      []TimelineEntry
	GeneratedAt   time.Time
}

var statusLabels = map[string]string{
	"pending":           "Pending",
	"approved":          "Approved",
	"changes_requested": "Changes requested",
	"expired":           "Expired",
}

// Build пишет PDF-отчёт в w.
func Build(w io.Writer, data Data) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Approval report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Approval report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated by %s on %s", data.OrgName, formatTime(data.GeneratedAt)), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.SetTextColor(0, 0, 0)

	writeRow := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(50, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 7, value, "", "L", false)
	}

	writeRow("Title", data.Title)
	writeRow("Project", data.ProjectName)
	writeRow("Client", data.ClientName)
	writeRow("Status", statusLabel(data.Status))
	writeRow("Version", fmt.Sprintf("%d", data.Version))
	writeRow("Created", formatTime(data.CreatedAt))
	if data.SentAt != nil {
		writeRow("Sent", formatTime(*data.SentAt))
	}
	writeRow("Valid until", formatTime(data.ExpiresAt))

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Client activity", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	writeRow("Views", fmt.Sprintf("%d", data.ViewCount))
	if data.FirstViewedAt != nil {
		writeRow("First viewed", formatTime(*data.FirstViewedAt))
	}
	if data.LastViewedAt != nil {
		writeRow("Last viewed", formatTime(*data.LastViewedAt))
	}
	if data.RespondedAt != nil {
		writeRow("Responded", formatTime(*data.RespondedAt))
	}
	if data.ResponseNotes != "" {
		writeRow("Response notes", data.ResponseNotes)
	}

	if len(data.Timeline) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Timeline", "", 1, "L", false, 0, "")

		for _, entry := range data.Timeline {
			pdf.SetFont("Helvetica", "", 9)
			pdf.CellFormat(45, 6, formatTime(entry.At), "", 0, "L", false, 0, "")
			pdf.MultiCell(0, 6, entry.Event, "", "L", false)
		}
	}

	pdf.SetY(-20)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, "This document was generated automatically and reflects the approval state at generation time.", "", 1, "L", false, 0, "")

	return pdf.Output(w)
}

func statusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
