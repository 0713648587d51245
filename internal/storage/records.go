package storage

import "time"

type PurchaseOrder struct {
	PONo         string    `json:"po_no"`
	ItemCode     string    `json:"item_code"`
	ItemName     string    `json:"item_name"`
	Quantity     int       `json:"quantity"`
	ReceivedDate time.Time `json:"received_date"`
	ETA          time.Time `json:"eta"`
}

type ProductionRecord struct {
	RecordDate     time.Time `json:"record_date"`
	Shift          string    `json:"shift"`
	MachineNo      string    `json:"machine_no"`
	MoldNo         string    `json:"mold_no"`
	ItemCode       string    `json:"item_code"`
	PONote         string    `json:"po_note"`
	GoodQuantity   int       `json:"good_quantity"`
	DefectQuantity int       `json:"defect_quantity"`
}

// MoldSpec is the technical sheet of one mold.
type MoldSpec struct {
	MoldNo       string  `json:"mold_no" yaml:"mold_no"`
	CavityCount  int     `json:"cavity_count" yaml:"cavity_count"`
	CycleTimeSec float64 `json:"cycle_time_sec" yaml:"cycle_time_sec"`
}

// MoldItem links an item to a mold able to produce it.
type MoldItem struct {
	ItemCode string `json:"item_code" yaml:"item_code"`
	MoldNo   string `json:"mold_no" yaml:"mold_no"`
}
