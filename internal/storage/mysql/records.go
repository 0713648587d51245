package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"molding-report/internal/constants"
	"molding-report/internal/storage"
)

func (s *Storage) GetPurchaseOrders(ctx context.Context) ([]storage.PurchaseOrder, error) {
	const op = "storage.mysql.GetPurchaseOrders"

	orders, err := load(ctx, s.db, tablePurchaseOrders, constants.PurchaseOrderColumns, func(sc rowScanner) (storage.PurchaseOrder, error) {
		var (
			o        storage.PurchaseOrder
			name     sql.NullString
			received sql.NullTime
			eta      sql.NullTime
		)
		err := sc.scan(map[string]any{
			"po_no":         &o.PONo,
			"item_code":     &o.ItemCode,
			"item_name":     &name,
			"quantity":      &o.Quantity,
			"received_date": &received,
			"eta":           &eta,
		})
		o.ItemName = name.String
		o.ReceivedDate = received.Time
		o.ETA = eta.Time
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return orders, nil
}

func (s *Storage) GetProductionRecords(ctx context.Context) ([]storage.ProductionRecord, error) {
	const op = "storage.mysql.GetProductionRecords"

	records, err := load(ctx, s.db, tableProductionRecords, constants.ProductionRecordColumns, func(sc rowScanner) (storage.ProductionRecord, error) {
		var (
			r                        storage.ProductionRecord
			date                     sql.NullTime
			shift, machine, mold, po sql.NullString
			good, defect             sql.NullInt64
		)
		err := sc.scan(map[string]any{
			"record_date":     &date,
			"shift":           &shift,
			"machine_no":      &machine,
			"mold_no":         &mold,
			"item_code":       &r.ItemCode,
			"po_note":         &po,
			"good_quantity":   &good,
			"defect_quantity": &defect,
		})
		r.RecordDate = date.Time
		r.Shift = shift.String
		r.MachineNo = machine.String
		r.MoldNo = mold.String
		r.PONote = po.String
		r.GoodQuantity = int(good.Int64)
		r.DefectQuantity = int(defect.Int64)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

func (s *Storage) GetMoldSpecs(ctx context.Context) ([]storage.MoldSpec, error) {
	const op = "storage.mysql.GetMoldSpecs"

	specs, err := load(ctx, s.db, tableMoldSpecs, constants.MoldSpecColumns, func(sc rowScanner) (storage.MoldSpec, error) {
		var (
			m      storage.MoldSpec
			cavity sql.NullInt64
			cycle  sql.NullFloat64
		)
		err := sc.scan(map[string]any{
			"mold_no":        &m.MoldNo,
			"cavity_count":   &cavity,
			"cycle_time_sec": &cycle,
		})
		m.CavityCount = int(cavity.Int64)
		m.CycleTimeSec = cycle.Float64
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return specs, nil
}

func (s *Storage) GetMoldItems(ctx context.Context) ([]storage.MoldItem, error) {
	const op = "storage.mysql.GetMoldItems"

	items, err := load(ctx, s.db, tableMoldItems, constants.MoldItemColumns, func(sc rowScanner) (storage.MoldItem, error) {
		var it storage.MoldItem
		err := sc.scan(map[string]any{
			"item_code": &it.ItemCode,
			"mold_no":   &it.MoldNo,
		})
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return items, nil
}
