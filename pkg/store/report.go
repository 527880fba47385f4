package store

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// WriteReport streams a ZIP archive containing one CSV per table.
func (s *Store) WriteReport(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, table := range []string{"tags", "events"} {
		f, err := zw.Create(table + ".csv")
		if err != nil {
			return err
		}
		if err := s.dumpCSV(f, table); err != nil {
			return fmt.Errorf("dumping %s: %w", table, err)
		}
	}
	return zw.Close()
}

func (s *Store) dumpCSV(w io.Writer, table string) error {
	rows, err := s.db.Query(`SELECT * FROM ` + table + ` ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(cols))

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range values {
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return rows.Err()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
