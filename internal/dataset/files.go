// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/affiliation-engine/internal/analysis"
	"github.com/pdiddy/affiliation-engine/internal/tabular"
	"github.com/pdiddy/affiliation-engine/pkg/types"
)

// Table file kinds, chosen by extension.
const (
	KindSpreadsheet = "spreadsheet"
	KindSQLite      = "sqlite"
	KindJSON        = "json"
	KindYAML        = "yaml"
)

// ErrUnknownKind is returned for an extension no reader or writer handles.
var ErrUnknownKind = errors.New("unknown table file type")

// KindOf classifies path by extension: .csv and .xlsx are spreadsheets,
// .db and .sqlite are SQLite datasets, .json and .yaml/.yml are exports.
func KindOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return KindSpreadsheet, nil
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite, nil
	case ".json":
		return KindJSON, nil
	case ".yaml", ".yml":
		return KindYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, filepath.Ext(path))
	}
}

// tableFile is the JSON and YAML export layout.
type tableFile struct {
	Columns []string                  `json:"columns" yaml:"columns"`
	Rows    []types.AffiliationRecord `json:"rows" yaml:"rows"`
}

// ReadTable loads an affiliation table from any supported file.
func ReadTable(ctx context.Context, path string) ([]types.AffiliationRecord, error) {
	kind, err := KindOf(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindSpreadsheet:
		return tabular.Load(path)
	case KindSQLite:
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("opening dataset: %w", err)
		}
		s, err := Open(path)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.Load(ctx, analysis.Filter{})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var tf tableFile
	if kind == KindJSON {
		err = json.Unmarshal(data, &tf)
	} else {
		err = yaml.Unmarshal(data, &tf)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if tf.Rows == nil {
		tf.Rows = []types.AffiliationRecord{}
	}
	for i := range tf.Rows {
		tf.Rows[i].Duration = types.ComputeDuration(tf.Rows[i].StartYear, tf.Rows[i].EndYear)
	}
	return tf.Rows, nil
}

// WriteTable saves rows to any supported file, replacing its contents.
func WriteTable(ctx context.Context, path string, rows []types.AffiliationRecord) error {
	kind, err := KindOf(path)
	if err != nil {
		return err
	}
	switch kind {
	case KindSpreadsheet:
		return tabular.Save(path, rows)
	case KindSQLite:
		s, err := Open(path)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.Save(ctx, rows)
	}

	if rows == nil {
		rows = []types.AffiliationRecord{}
	}
	tf := tableFile{Columns: types.Columns, Rows: rows}
	var data []byte
	if kind == KindJSON {
		data, err = json.MarshalIndent(tf, "", "  ")
	} else {
		data, err = yaml.Marshal(&tf)
	}
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", kind, err)
	}
	return os.WriteFile(path, data, 0o644)
}
