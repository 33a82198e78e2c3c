package scanner

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sbr_monitor/models"
)

// Columns is the CSV layout written by WriteCSV and assumed for files
// without a header row. Reading columns use the JSON wire names.
var Columns = []string{
	"timestamp", "point", "ph", "chzt", "tn", "tp", "nh4", "no3", "caco3", "mlss", "temperature", "note", "id",
}

var readingColumns = []string{"ph", "chzt", "tn", "tp", "nh4", "no3", "caco3", "mlss", "temperature"}

// headerAliases maps alternative header spellings to column names
var headerAliases = map[string]string{
	"time":           "timestamp",
	"date":           "timestamp",
	"datetime":       "timestamp",
	"sampled_at":     "timestamp",
	"location":       "point",
	"sampling_point": "point",
	"cod":            "chzt",
	"nh4-n":          "nh4",
	"ammonium":       "nh4",
	"no3-n":          "no3",
	"nitrate":        "no3",
	"alkalinity":     "caco3",
	"temp":           "temperature",
	"comment":        "note",
	"notes":          "note",
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

type columnLayout struct {
	timestamp int
	point     int
	note      int
	id        int
	readings  map[string]int
}

func newLayout(index map[string]int) columnLayout {
	lookup := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		return -1
	}
	l := columnLayout{
		timestamp: lookup("timestamp"),
		point:     lookup("point"),
		note:      lookup("note"),
		id:        lookup("id"),
		readings:  make(map[string]int, len(readingColumns)),
	}
	for _, col := range readingColumns {
		l.readings[col] = lookup(col)
	}
	return l
}

func defaultLayout() columnLayout {
	index := make(map[string]int, len(Columns))
	for i, name := range Columns {
		index[name] = i
	}
	return newLayout(index)
}

func headerLayout(header []string) columnLayout {
	index := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	return newLayout(index)
}

func readingTargets(r *models.Readings) map[string]**float64 {
	return map[string]**float64{
		"ph":          &r.PH,
		"chzt":        &r.COD,
		"tn":          &r.TotalNitrogen,
		"tp":          &r.TotalPhosphorus,
		"nh4":         &r.Ammonium,
		"no3":         &r.Nitrate,
		"caco3":       &r.Alkalinity,
		"mlss":        &r.MLSS,
		"temperature": &r.Temperature,
	}
}

// WriteCSV writes history with a header row in Columns order. Timestamps are
// RFC 3339 in UTC; unmeasured readings are empty cells.
func WriteCSV(w io.Writer, history []models.Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, m := range history {
		r := m.Readings
		values := readingTargets(&r)
		row := make([]string, 0, len(Columns))
		row = append(row, m.Time().UTC().Format(time.RFC3339), string(m.Point))
		for _, col := range readingColumns {
			row = append(row, formatReading(*values[col]))
		}
		row = append(row, m.Note, m.ID)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row %s: %w", m.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatReading(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
