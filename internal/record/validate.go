package record

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mapfolio/placesync/internal/tabular"
)

// Coordinate bounds in degrees.
const (
	maxLatitude  = 90
	maxLongitude = 180
)

// Convert validates one row and produces its Record. It never fails:
// every problem becomes an entry in ValidationErrors and drives the
// classification instead.
func Convert(row tabular.Row, m Mapping) Record {
	rec := Record{
		ID:          strings.TrimSpace(row[m.ID]),
		DisplayName: strings.TrimSpace(row[m.DisplayName]),
		GroupingRaw: row[m.Grouping],
		Address:     strings.TrimSpace(row[m.Address]),
	}

	var errs []string

	lat, lon, coordErrs := parseCoordinates(row, m)
	errs = append(errs, coordErrs...)
	rec.Latitude = lat
	rec.Longitude = lon

	if rec.ID == "" {
		errs = append(errs, fmt.Sprintf("required field %q is empty", m.ID))
	}
	if rec.DisplayName == "" {
		errs = append(errs, fmt.Sprintf("required field %q is empty", m.DisplayName))
	}

	rec.ValidationErrors = errs
	rec.Classification = Classify(errs)
	return rec
}

// parseCoordinates reads the coordinate cell, expected to hold a JSON-style
// two-element array [longitude, latitude]. On any problem it returns 0, 0
// and one error per distinct failure mode.
func parseCoordinates(row tabular.Row, m Mapping) (lat, lon float64, errs []string) {
	raw, present := row[m.Coordinates]
	raw = strings.TrimSpace(raw)
	if !present || raw == "" {
		return 0, 0, []string{"missing coordinates"}
	}

	var elements []any
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return 0, 0, []string{fmt.Sprintf("invalid coordinates %q: not a bracketed number pair", raw)}
	}

	if len(elements) != 2 {
		return 0, 0, []string{fmt.Sprintf("coordinates must hold exactly 2 values, got %d", len(elements))}
	}

	lonVal, lonOK := elements[0].(float64)
	latVal, latOK := elements[1].(float64)
	if !lonOK || !latOK {
		return 0, 0, []string{"coordinates must be numeric"}
	}

	if latVal < -maxLatitude || latVal > maxLatitude {
		errs = append(errs, fmt.Sprintf("invalid coordinate: latitude %v out of range", latVal))
	}
	if lonVal < -maxLongitude || lonVal > maxLongitude {
		errs = append(errs, fmt.Sprintf("invalid coordinate: longitude %v out of range", lonVal))
	}
	if len(errs) > 0 {
		return 0, 0, errs
	}

	return latVal, lonVal, nil
}
