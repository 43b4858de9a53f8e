// Package records implements the incident record lifecycle: validation,
// transactional writes spanning the database and attachment storage, and
// filtered queries.
package records

import (
	"io"
	"slices"
	"strings"
	"time"

	"trustlog/core/errs"
	"trustlog/core/store"
)

// DesignatedCategory is the only category that keeps supporting evidence.
const DesignatedCategory = "Unilateral Decision-Making"

var Categories = []string{
	"Communication Breakdown",
	DesignatedCategory,
	"Alcohol Use",
	"Schedule Violation",
	"Missed Visitation",
	"Disparagement",
	"Safety Concern",
	"Financial Dispute",
	"Other",
}

var ImpactTypes = []string{
	"Impact on Co-Parenting",
	"Impact on Child Wellbeing",
	"Emotional Impact",
	"Financial Impact",
	"Schedule Disruption",
	"Safety Risk",
	"Other",
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Input is the full field set of a create or update request. Empty optional
// strings are stored as null.
type Input struct {
	DateOfIncident     string   `json:"date_of_incident"`
	TimeOfIncident     string   `json:"time_of_incident"`
	Category           string   `json:"category"`
	Description        string   `json:"description_of_incident"`
	ImpactTypes        []string `json:"impact_types"`
	ImpactDetails      string   `json:"impact_details"`
	SupportingEvidence *string  `json:"supporting_evidence_snippet"`
	ExhibitReference   string   `json:"exhibit_reference"`
}

type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// ValidDate reports whether v is a YYYY-MM-DD calendar date.
func ValidDate(v string) bool {
	_, err := time.Parse(dateLayout, v)
	return err == nil
}

// normalize validates in and returns the record to persist. Supporting
// evidence is dropped unless the category is DesignatedCategory.
func normalize(in Input) (*store.Record, error) {
	date := strings.TrimSpace(in.DateOfIncident)
	if date == "" {
		return nil, errs.Validation("missing or empty required field: date_of_incident")
	}
	if !ValidDate(date) {
		return nil, errs.Validation("date_of_incident must be YYYY-MM-DD")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, errs.Validation("missing or empty required field: category")
	}
	if !slices.Contains(Categories, category) {
		return nil, errs.Validation("unknown category: %s", category)
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, errs.Validation("missing or empty required field: description_of_incident")
	}
	var impacts []string
	for _, it := range in.ImpactTypes {
		it = strings.TrimSpace(it)
		if it == "" || slices.Contains(impacts, it) {
			continue
		}
		if !slices.Contains(ImpactTypes, it) {
			return nil, errs.Validation("unknown impact type: %s", it)
		}
		impacts = append(impacts, it)
	}
	if len(impacts) == 0 {
		return nil, errs.Validation("at least one impact type is required")
	}
	rec := &store.Record{
		DateOfIncident:   date,
		Category:         category,
		Description:      description,
		ImpactTypes:      impacts,
		ImpactDetails:    optional(in.ImpactDetails),
		ExhibitReference: optional(in.ExhibitReference),
	}
	if tm := strings.TrimSpace(in.TimeOfIncident); tm != "" {
		parsed, err := time.Parse(timeLayout, tm)
		if err != nil {
			parsed, err = time.Parse("15:04:05", tm)
		}
		if err != nil {
			return nil, errs.Validation("time_of_incident must be HH:MM")
		}
		rec.TimeOfIncident = optional(parsed.Format(timeLayout))
	}
	if category == DesignatedCategory && in.SupportingEvidence != nil {
		rec.SupportingEvidence = optional(*in.SupportingEvidence)
	}
	return rec, nil
}
