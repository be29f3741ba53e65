// Package record converts parsed CSV rows into typed, classified location
// records. Conversion is a pure function of its input: every problem with a
// row is captured in the record's ValidationErrors list rather than raised,
// so the operator always sees the fate of every row, usable or not.
package record

import (
	"strings"

	"github.com/mapfolio/placesync/internal/tabular"
)

// Classification is the tri-state validation outcome for a record.
type Classification string

const (
	// ClassificationValid records passed every check and are eligible for sync.
	ClassificationValid Classification = "valid"
	// ClassificationWarning records have non-blocking problems; they are
	// still eligible for sync but the operator should review them.
	ClassificationWarning Classification = "warning"
	// ClassificationInvalid records are never submitted to the remote catalog.
	ClassificationInvalid Classification = "invalid"
)

// Record is one validated, typed location record derived from a CSV row.
type Record struct {
	// ID is the external identifier used to address the remote record.
	ID string `json:"id"`
	// DisplayName is the human-readable label.
	DisplayName string `json:"displayName"`
	// GroupingRaw is an opaque passthrough string; it is not used for sync,
	// only echoed back for operator review.
	GroupingRaw string `json:"groupingRaw"`
	// Address is an optional free-text address, forwarded when present.
	Address string `json:"address,omitempty"`
	// Latitude and Longitude are degrees; both stay 0 when the coordinate
	// cell is absent or unusable.
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Classification   Classification `json:"classification"`
	ValidationErrors []string       `json:"validationErrors,omitempty"`
}

// Eligible reports whether the record may be submitted to the remote
// catalog. Invalid records are never eligible.
func (r Record) Eligible() bool {
	return r.Classification == ClassificationValid || r.Classification == ClassificationWarning
}

// HasCoordinates reports whether the record carries a usable coordinate
// pair. Records without coordinates sync their other fields only.
func (r Record) HasCoordinates() bool {
	return r.Latitude != 0 || r.Longitude != 0
}

// Mapping names the CSV columns each record field is read from.
type Mapping struct {
	ID          string
	DisplayName string
	Grouping    string
	GeoType     string
	Coordinates string
	Address     string
}

// DefaultMapping returns the column names used by the standard export
// format of the capture tool.
func DefaultMapping() Mapping {
	return Mapping{
		ID:          "id",
		DisplayName: "shop_name",
		Grouping:    "shop_malls",
		GeoType:     "shop_location.type",
		Coordinates: "shop_location.coordinates",
		Address:     "shop_address",
	}
}

// Classify derives the classification from a list of validation errors.
//
// Any error mentioning "required", "missing", or "invalid coordinate"
// (case-insensitive substring match) makes the record invalid. Other
// errors downgrade it to warning; no errors means valid.
func Classify(errs []string) Classification {
	for _, e := range errs {
		msg := strings.ToLower(e)
		if strings.Contains(msg, "required") ||
			strings.Contains(msg, "missing") ||
			strings.Contains(msg, "invalid coordinate") {
			return ClassificationInvalid
		}
	}
	if len(errs) > 0 {
		return ClassificationWarning
	}
	return ClassificationValid
}

// ConvertAll converts rows independently and in order.
func ConvertAll(rows []tabular.Row, m Mapping) []Record {
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Convert(row, m)
	}
	return records
}
