// Package xlsx loads record sets from a workbook with one sheet per source.
// The first row of every sheet holds the column names.
package xlsx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"molding-report/internal/constants"
	"molding-report/internal/storage"
	"molding-report/internal/validate"
)

const (
	SheetPurchaseOrders    = "purchase_orders"
	SheetProductionRecords = "production_records"
	SheetMoldSpecs         = "mold_specs"
	SheetMoldItems         = "mold_items"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02.01.2006",
}

type Storage struct {
	path string
}

func New(path string) *Storage {
	return &Storage{path: path}
}

// sheet is a header-indexed view of one worksheet.
type sheet struct {
	name   string
	index  map[string]int
	rows   [][]string
	errors *validate.Error
}

func (s *Storage) open(ctx context.Context, name string, required constants.ColumnSet) (*sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(name); err != nil || idx < 0 {
		return nil, &validate.Error{Source: name, Missing: required}
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}

	var header []string
	if len(rows) > 0 {
		header = rows[0]
		rows = rows[1:]
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := validate.Columns(name, header, required); err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	return &sheet{name: name, index: index, rows: skipBlank(rows), errors: &validate.Error{Source: name}}, nil
}

func skipBlank(rows [][]string) [][]string {
	out := rows[:0]
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (s *sheet) str(row int, col string) string {
	r := s.rows[row]
	i := s.index[col]
	if i >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[i])
}

func (s *sheet) integer(row int, col string) int {
	v := s.str(row, col)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int(f)) {
			s.fail(row, col, fmt.Sprintf("not an integer: %q", v))
			return 0
		}
		n = int(f)
	}
	return n
}

func (s *sheet) number(row int, col string) float64 {
	v := s.str(row, col)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.fail(row, col, fmt.Sprintf("not a number: %q", v))
		return 0
	}
	return f
}

// date accepts an Excel serial or one of dateLayouts. Blank is the zero time.
func (s *sheet) date(row int, col string) time.Time {
	v := s.str(row, col)
	if v == "" {
		return time.Time{}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	s.fail(row, col, fmt.Sprintf("not a date: %q", v))
	return time.Time{}
}

// fail numbers data rows from 2, the first row below the header. Blank
// rows are dropped before numbering.
func (s *sheet) fail(row int, col, reason string) {
	s.errors.Fields = append(s.errors.Fields, validate.FieldError{Row: row + 2, Column: col, Reason: reason})
}

func (s *sheet) err() error {
	if len(s.errors.Fields) > 0 {
		return s.errors
	}
	return nil
}

func (s *Storage) GetPurchaseOrders(ctx context.Context) ([]storage.PurchaseOrder, error) {
	const op = "storage.xlsx.GetPurchaseOrders"

	sh, err := s.open(ctx, SheetPurchaseOrders, constants.PurchaseOrderColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	orders := make([]storage.PurchaseOrder, len(sh.rows))
	for i := range sh.rows {
		orders[i] = storage.PurchaseOrder{
			PONo:         sh.str(i, "po_no"),
			ItemCode:     sh.str(i, "item_code"),
			ItemName:     sh.str(i, "item_name"),
			Quantity:     sh.integer(i, "quantity"),
			ReceivedDate: sh.date(i, "received_date"),
			ETA:          sh.date(i, "eta"),
		}
	}
	if err := sh.err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return orders, nil
}

func (s *Storage) GetProductionRecords(ctx context.Context) ([]storage.ProductionRecord, error) {
	const op = "storage.xlsx.GetProductionRecords"

	sh, err := s.open(ctx, SheetProductionRecords, constants.ProductionRecordColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records := make([]storage.ProductionRecord, len(sh.rows))
	for i := range sh.rows {
		records[i] = storage.ProductionRecord{
			RecordDate:     sh.date(i, "record_date"),
			Shift:          sh.str(i, "shift"),
			MachineNo:      sh.str(i, "machine_no"),
			MoldNo:         sh.str(i, "mold_no"),
			ItemCode:       sh.str(i, "item_code"),
			PONote:         sh.str(i, "po_note"),
			GoodQuantity:   sh.integer(i, "good_quantity"),
			DefectQuantity: sh.integer(i, "defect_quantity"),
		}
	}
	if err := sh.err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

func (s *Storage) GetMoldSpecs(ctx context.Context) ([]storage.MoldSpec, error) {
	const op = "storage.xlsx.GetMoldSpecs"

	sh, err := s.open(ctx, SheetMoldSpecs, constants.MoldSpecColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	specs := make([]storage.MoldSpec, len(sh.rows))
	for i := range sh.rows {
		specs[i] = storage.MoldSpec{
			MoldNo:       sh.str(i, "mold_no"),
			CavityCount:  sh.integer(i, "cavity_count"),
			CycleTimeSec: sh.number(i, "cycle_time_sec"),
		}
	}
	if err := sh.err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return specs, nil
}

func (s *Storage) GetMoldItems(ctx context.Context) ([]storage.MoldItem, error) {
	const op = "storage.xlsx.GetMoldItems"

	sh, err := s.open(ctx, SheetMoldItems, constants.MoldItemColumns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	items := make([]storage.MoldItem, len(sh.rows))
	for i := range sh.rows {
		items[i] = storage.MoldItem{
			ItemCode: sh.str(i, "item_code"),
			MoldNo:   sh.str(i, "mold_no"),
		}
	}

	return items, nil
}
