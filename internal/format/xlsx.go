package format

import (
	"fmt"
	"io"
	"time"

	"wafer-defects/internal/model"

	"github.com/xuri/excelize/v2"
)

const (
	defectsSheet = "Defects"
	modesSheet   = "Modes"
)

var (
	defectHeaders = []string{"ID", "Defect", "PDF", "Modes"}
	modeHeaders   = []string{"Defect ID", "Defect", "Mode ID", "Mode", "Description", "Image"}
)

// WriteXLSX exports defects as a workbook with one Defects row per defect
// and one Modes row per mode.
func WriteXLSX(w io.Writer, defects []model.Defect, query string) error {
	f, err := BuildXLSX(defects, query, time.Now())
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

func BuildXLSX(defects []model.Defect, query string, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", defectsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(modesSheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}

	title := "All defects"
	if query != "" {
		title = fmt.Sprintf("Defects matching %q", query)
	}
	if err := f.SetCellValue(defectsSheet, "A1", title); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(defectsSheet, "A2", "Exported "+now.Format("2006-01-02 15:04:05")); err != nil {
		return nil, err
	}

	// Defects: title rows, blank row, header on row 4.
	if err := writeRow(f, defectsSheet, 4, headerStyle, toAny(defectHeaders)...); err != nil {
		return nil, err
	}
	if err := writeRow(f, modesSheet, 1, headerStyle, toAny(modeHeaders)...); err != nil {
		return nil, err
	}

	row, modeRow := 5, 2
	for _, d := range defects {
		if err := writeRow(f, defectsSheet, row, 0, d.ID, d.DefectName, d.PDFFilename, len(d.Modes)); err != nil {
			return nil, err
		}
		row++
		for _, m := range d.Modes {
			if err := writeRow(f, modesSheet, modeRow, 0, d.ID, d.DefectName, m.ID, m.ModeName, m.Description, m.ImageFilename); err != nil {
				return nil, err
			}
			modeRow++
		}
	}

	widths := map[string][]float64{
		defectsSheet: {8, 30, 30, 8},
		modesSheet:   {10, 30, 10, 24, 50, 30},
	}
	for sheet, ws := range widths {
		for i, wdt := range ws {
			col, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetColWidth(sheet, col, col, wdt); err != nil {
				return nil, err
			}
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row, style int, values ...any) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return err
			}
		}
	}
	return nil
}

func toAny(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
