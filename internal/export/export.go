// Package export renders appointment lists as XLSX workbooks.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"hairstudio/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Appointments"

var columns = []string{"Time", "Duration", "Customer", "Phone", "E-mail", "Service", "Status"}

// FileName is the download name of an export for the date range.
func FileName(from, to string) string {
	return fmt.Sprintf("appointments_%s_to_%s.xlsx", from, to)
}

// Archive stores a rendered export under dir and returns the file path.
func Archive(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save export: %w", err)
	}
	return path, nil
}

// WriteAppointments writes a workbook with the appointments grouped by date.
func WriteAppointments(w io.Writer, from, to string, appointments []*models.Appointment) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	lastCol, _ := excelize.ColumnNumberToName(len(columns))

	// Заголовок периода
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s", from, to))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", styles.title)

	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, name)
		_ = f.SetCellStyle(sheetName, cell, cell, styles.header)
	}

	sorted := append([]*models.Appointment(nil), appointments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].Time < sorted[j].Time
	})

	row := 3
	currentDate := ""
	for _, a := range sorted {
		if a.Date != currentDate {
			currentDate = a.Date
			cell, _ := excelize.CoordinatesToCellName(1, row)
			_ = f.SetCellValue(sheetName, cell, a.Date)
			_ = f.MergeCell(sheetName, cell, fmt.Sprintf("%s%d", lastCol, row))
			_ = f.SetCellStyle(sheetName, cell, cell, styles.date)
			row++
		}

		values := []interface{}{
			a.Time,
			a.Duration,
			a.CustomerName,
			models.StringValue(a.CustomerPhone),
			models.StringValue(a.CustomerEmail),
			models.StringValue(a.ServiceName),
			a.Status,
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if !a.IsConfirmed() {
			end := fmt.Sprintf("%s%d", lastCol, row)
			_ = f.SetCellStyle(sheetName, start, end, styles.cancelled)
		}
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "B", 12)
	_ = f.SetColWidth(sheetName, "C", lastCol, 24)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

type sheetStyles struct {
	title, header, date, cancelled int
}

func newStyles(f *excelize.File) (sheetStyles, error) {
	var s sheetStyles
	var err error

	if s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, fmt.Errorf("error creating style: %w", err)
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	}); err != nil {
		return s, fmt.Errorf("error creating style: %w", err)
	}
	if s.date, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	}); err != nil {
		return s, fmt.Errorf("error creating style: %w", err)
	}
	if s.cancelled, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	}); err != nil {
		return s, fmt.Errorf("error creating style: %w", err)
	}
	return s, nil
}
