package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/twpayne/go-kml/v3"

	"github.com/abril-student/ranch-monitoring/internal/telemetry"
)

// WriteKML writes one folder per device holding its sampled path as a
// LineString and its latest sample as a Point. Samples without a position
// are skipped.
func WriteKML(w io.Writer, histories map[string][]telemetry.Record, generated time.Time) error {
	ids := make([]string, 0, len(histories))
	for id := range histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docElements := []kml.Element{
		kml.Name(fmt.Sprintf("Ranch history - %s", generated.UTC().Format("2006-01-02 15:04:05"))),
	}
	for _, id := range ids {
		var coords []kml.Coordinate
		var latest telemetry.Record
		for _, rec := range histories[id] {
			if !rec.HasPosition() {
				continue
			}
			coords = append(coords, coordinate(rec))
			latest = rec
		}
		if len(coords) == 0 {
			continue
		}

		folder := []kml.Element{
			kml.Name(id),
			kml.Placemark(
				kml.Name(id),
				kml.Description(describe(latest)),
				kml.Point(kml.Coordinates(coordinate(latest))),
			),
		}
		if len(coords) >= 2 {
			folder = append(folder, kml.Placemark(
				kml.Name(id+" path"),
				kml.Description(fmt.Sprintf("%d samples", len(coords))),
				kml.LineString(kml.Coordinates(coords...)),
			))
		}
		docElements = append(docElements, kml.Folder(folder...))
	}

	doc := kml.KML(kml.Document(docElements...))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("write kml: %w", err)
	}
	return nil
}

func coordinate(rec telemetry.Record) kml.Coordinate {
	c := kml.Coordinate{Lon: *rec.Lon, Lat: *rec.Lat}
	if rec.Alt != nil {
		c.Alt = *rec.Alt
	}
	return c
}

func describe(rec telemetry.Record) string {
	s := "last sample"
	if rec.Timestamp != nil {
		s = time.Unix(*rec.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	if pct := telemetry.BatteryPercent(rec.Batt); pct != nil {
		s += fmt.Sprintf(", battery %d%%", *pct)
	}
	return s
}
