// Package importing reads uploaded spreadsheets and loads them into the
// database: transaction files, budget files, categorization mappings and
// insight comparison data. Every importer validates the whole file first and
// writes nothing unless the file is clean.
package importing

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

var oleHeader = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

func isXLSX(data []byte) bool { return len(data) >= 2 && data[0] == 'P' && data[1] == 'K' }

func isXLS(data []byte) bool { return bytes.HasPrefix(data, oleHeader) }

// ReadTable reads an uploaded .xlsx, .xls or CSV file into rows of strings.
// Fully empty rows are dropped. Text files are decoded as UTF-8 with a
// Windows-1252 fallback; undecodable bytes come through as U+FFFD so row
// validation can flag them.
func ReadTable(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var raw [][]string
	switch {
	case isXLSX(data):
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		raw, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, err
		}
	case isXLS(data):
		wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		sheet := wb.GetSheet(0)
		if sheet == nil {
			return nil, errors.New("importing: xls file has no sheets")
		}
		for i := 0; i <= int(sheet.MaxRow); i++ {
			row := sheet.Row(i)
			if row == nil {
				continue
			}
			var cells []string
			for j := row.FirstCol(); j <= row.LastCol(); j++ {
				cells = append(cells, row.Col(j))
			}
			raw = append(raw, cells)
		}
	default:
		text := string(data)
		if !utf8.Valid(data) {
			decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
			if err != nil {
				text = strings.ToValidUTF8(string(data), "�")
			} else {
				text = string(decoded)
			}
		}
		reader := csv.NewReader(strings.NewReader(text))
		reader.FieldsPerRecord = -1
		raw, err = reader.ReadAll()
		if err != nil {
			return nil, err
		}
	}

	var rows [][]string
	for _, row := range raw {
		empty := true
		for _, cell := range row {
			if cell != "" {
				empty = false
				break
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadRecords reads a file with a header row into one map per data row,
// keyed by the normalized header names.
func ReadRecords(r io.Reader) ([]map[string]string, []string, error) {
	rows, err := ReadTable(r)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		keys[i] = NormalizeHeader(h)
	}
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := map[string]string{}
		for i, key := range keys {
			if i < len(row) {
				rec[key] = row[i]
			} else {
				rec[key] = ""
			}
		}
		records = append(records, rec)
	}
	return records, keys, nil
}

// NormalizeHeader lowers a header cell and squashes it into the snake_case
// key the importers match on.
func NormalizeHeader(h string) string {
	h = strings.ToLower(h)
	h = strings.ReplaceAll(h, " ", "_")
	return strings.ReplaceAll(h, ",", "")
}
