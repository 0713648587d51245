// Package moldspec reads the static mold tables from a YAML file:
//
//	molds:
//	  - mold_no: MD-01
//	    cavity_count: 8
//	    cycle_time_sec: 36
//	items:
//	  - item_code: IT-1
//	    mold_no: MD-01
package moldspec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"molding-report/internal/storage"
	"molding-report/internal/validate"
)

type File struct {
	Molds []storage.MoldSpec `yaml:"molds"`
	Items []storage.MoldItem `yaml:"items"`
}

// Decode parses a mold table. Unknown keys and mistyped values are
// validation errors.
func Decode(r io.Reader) (*File, error) {
	const op = "storage.moldspec.Decode"

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			ve := &validate.Error{Source: "mold_specs"}
			for _, msg := range te.Errors {
				ve.Fields = append(ve.Fields, validate.FieldError{Reason: msg})
			}
			return nil, fmt.Errorf("%s: %w", op, ve)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &f, nil
}

// Storage serves the mold tables of one file. The file is read once.
type Storage struct {
	file *File
}

func Open(path string) (*Storage, error) {
	const op = "storage.moldspec.Open"

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer fh.Close()

	f, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, path, err)
	}
	return &Storage{file: f}, nil
}

func (s *Storage) GetMoldSpecs(context.Context) ([]storage.MoldSpec, error) {
	return s.file.Molds, nil
}

func (s *Storage) GetMoldItems(context.Context) ([]storage.MoldItem, error) {
	return s.file.Items, nil
}
