package followup

import (
	"fmt"
	"strings"
)

const (
	highMissingRate = 0.2
	largeRowCount   = 10000
	sampleRows      = 1000
	maxListed       = 5
)

// InspectionResult is the output of the data-inspection tool.
type InspectionResult struct {
	Format        string   `json:"format"` // csv or json
	RowsCount     int      `json:"rowsCount"`
	Headers       []string `json:"headers,omitempty"`
	MissingAvg    float64  `json:"missingAvg"` // average fraction of empty cells per column
	NumericFields []string `json:"numericFields,omitempty"`
	ParseError    string   `json:"parseError,omitempty"`
}

// DataInspection suggests a follow-up for an inspected dataset.
type DataInspection struct{}

// FollowUp implements autopilot.FollowUpGenerator.
func (DataInspection) FollowUp(r InspectionResult) string {
	if r.ParseError != "" {
		return fmt.Sprintf("Fix the input file so it parses cleanly (%s) and inspect it again", r.ParseError)
	}

	if strings.EqualFold(r.Format, "json") {
		if len(r.NumericFields) > 0 {
			return "Compute summary statistics for the numeric fields " + listNames(r.NumericFields)
		}
		return "Flatten the nested JSON records into a table for analysis"
	}

	switch {
	case r.MissingAvg > highMissingRate:
		return fmt.Sprintf("Clean the dataset: %.0f%% of values are missing on average", r.MissingAvg*100)
	case r.RowsCount > largeRowCount:
		return fmt.Sprintf("Draw a %d-row sample from the %d rows for exploratory analysis", sampleRows, r.RowsCount)
	case len(r.Headers) > 0:
		return "Profile the distributions and outliers of " + listNames(r.Headers)
	default:
		return ""
	}
}

func listNames(names []string) string {
	if len(names) <= maxListed {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(names[:maxListed], ", "), len(names)-maxListed)
}
