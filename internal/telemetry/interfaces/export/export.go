package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	telemetry "sensor-gateway/internal/telemetry/domain"
)

// Supported export formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

const timeLayout = time.RFC3339

var readingColumns = []string{"Timestamp", "Device", "Analog", "Digital", "Source"}

// ContentType returns the media type for a format.
func ContentType(format string) string {
	switch format {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Build renders readings in the requested format.
func Build(format string, readings []telemetry.Reading, generatedAt time.Time) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return BuildReadingsXLSX(readings, generatedAt)
	case FormatPDF:
		return BuildReadingsPDF(readings, generatedAt)
	default:
		return nil, fmt.Errorf("export: unsupported format %q", format)
	}
}

// BuildReadingsXLSX renders a workbook with a summary sheet and one row per reading.
func BuildReadingsXLSX(readings []telemetry.Reading, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	readingsSheet := "readings"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(readingsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Sensor Readings")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", generatedAt.UTC().Format(timeLayout))
	_ = f.SetCellValue(summarySheet, "A4", "Readings")
	_ = f.SetCellValue(summarySheet, "B4", len(readings))

	for i, title := range readingColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(readingsSheet, cell, title)
	}
	for i, reading := range readings {
		row := i + 2
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("A%d", row), reading.Timestamp.Format(time.RFC3339Nano))
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("B%d", row), reading.DeviceID)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("C%d", row), reading.AnalogValue)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("D%d", row), reading.DigitalValue)
		_ = f.SetCellValue(readingsSheet, fmt.Sprintf("E%d", row), reading.SourceAddress)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReadingsPDF renders a minimal PDF table of readings.
func BuildReadingsPDF(readings []telemetry.Reading, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Sensor Readings")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(timeLayout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings: %d", len(readings)))
	pdf.Ln(8)

	widths := []float64{55, 40, 25, 25, 40}
	pdf.SetFont("Arial", "B", 10)
	for i, title := range readingColumns {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, reading := range readings {
		pdf.CellFormat(widths[0], 6, reading.Timestamp.Format(timeLayout), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, reading.DeviceID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, fmt.Sprintf("%d", reading.AnalogValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, fmt.Sprintf("%d", reading.DigitalValue), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, reading.SourceAddress, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
