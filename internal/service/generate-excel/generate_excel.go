package generate_excel

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"molding-report/internal/constants"
	"molding-report/internal/service/analysis"
	"molding-report/internal/service/progress"
)

// Sheet names of the progress workbook, in workbook order.
const (
	SheetFinished   = "finished"
	SheetUnfinished = "unfinished"
	SheetShort      = "short"
	SheetProgress   = "progress"
	SheetRecords    = "records"
)

type sheetSpec struct {
	name    string
	columns constants.ColumnSet
	rows    func(a *analysis.Analysis) []map[string]any
}

var sheets = []sheetSpec{
	{SheetFinished, constants.FinishedSheet, func(a *analysis.Analysis) []map[string]any {
		return orderRows(a, a.Finished())
	}},
	{SheetUnfinished, constants.UnfinishedSheet, func(a *analysis.Analysis) []map[string]any {
		return orderRows(a, a.Unfinished())
	}},
	{SheetShort, constants.ShortSheet, func(a *analysis.Analysis) []map[string]any {
		return orderRows(a, a.Unfinished())
	}},
	{SheetProgress, constants.ProgressSheet, func(a *analysis.Analysis) []map[string]any {
		return orderRows(a, a.Orders)
	}},
	{SheetRecords, constants.RecordSheet, func(a *analysis.Analysis) []map[string]any {
		records := a.PeriodRecords()
		out := make([]map[string]any, len(records))
		for i, r := range records {
			out[i] = analysis.RecordValues(r)
		}
		return out
	}},
}

// SheetNames lists the workbook sheets in order.
func SheetNames() []string {
	out := make([]string, len(sheets))
	for i, s := range sheets {
		out[i] = s.name
	}
	return out
}

type GenerateExcelService struct{}

func NewGenerateService() *GenerateExcelService {
	return &GenerateExcelService{}
}

// GenerateExcel writes the progress workbook of one analysis.
func (g *GenerateExcelService) GenerateExcel(ctx context.Context, a *analysis.Analysis) ([]byte, error) {
	const op = "service.generate_excel.GenerateExcel"

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 2}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: header style: %w", op, err)
	}

	for i, s := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if i == 0 {
			err = f.SetSheetName("Sheet1", s.name)
		} else {
			_, err = f.NewSheet(s.name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: sheet %s: %w", op, s.name, err)
		}

		if err := writeSheet(f, s.name, s.columns, s.rows(a), headerStyle); err != nil {
			return nil, fmt.Errorf("%s: sheet %s: %w", op, s.name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, columns constants.ColumnSet, rows []map[string]any, headerStyle int) error {
	for i, col := range columns {
		if err := f.SetCellValue(sheet, cellName(i+1, 1), col); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheet, "A1", cellName(len(columns), 1), headerStyle); err != nil {
		return err
	}

	for r, row := range rows {
		for c, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			if err := f.SetCellValue(sheet, cellName(c+1, r+2), v); err != nil {
				return err
			}
		}
	}

	// freeze the header row
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	lastCol, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 15)
}

func orderRows(a *analysis.Analysis, orders []progress.ClassifiedOrder) []map[string]any {
	out := make([]map[string]any, len(orders))
	for i, o := range orders {
		out[i] = a.OrderValues(o)
	}
	return out
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
