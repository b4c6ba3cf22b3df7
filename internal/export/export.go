// Package export writes sampled device histories as CSV, KML or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/abril-student/ranch-monitoring/internal/telemetry"
)

// Columns is the header shared by the tabular formats.
var Columns = []string{"id", "timestamp", "iso_time", "lat", "lon", "batt", "rssi", "snr", "fix_ok"}

// Row is one history sample flattened for export.
type Row struct {
	ID     string
	Record telemetry.Record
}

// Rows flattens histories ordered by device id, keeping each history's order.
func Rows(histories map[string][]telemetry.Record) []Row {
	ids := make([]string, 0, len(histories))
	for id := range histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Row
	for _, id := range ids {
		for _, rec := range histories[id] {
			out = append(out, Row{ID: id, Record: rec})
		}
	}
	return out
}

// Values renders a row as strings in Columns order. Unknown values are empty.
func (r Row) Values() []string {
	rec := r.Record
	ts, iso := "", ""
	if rec.Timestamp != nil {
		ts = strconv.FormatInt(*rec.Timestamp, 10)
		iso = time.Unix(*rec.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	fix := ""
	if rec.FixOK != nil {
		fix = strconv.FormatBool(*rec.FixOK)
	}
	return []string{
		r.ID, ts, iso,
		num(rec.Lat), num(rec.Lon),
		num(rec.Batt), num(rec.RSSI), num(rec.SNR),
		fix,
	}
}

func num(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// WriteCSV writes every history sample as CSV with a header line.
func WriteCSV(w io.Writer, histories map[string][]telemetry.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range Rows(histories) {
		if err := cw.Write(row.Values()); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
