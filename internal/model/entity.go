package model

import "strings"

// EntityLabel is the closed taxonomy of recognized entity kinds. Collaborator
// output that does not map onto a known label parses to LabelOther rather
// than failing, so new model labels degrade gracefully.
type EntityLabel string

const (
	LabelMedication   EntityLabel = "MEDICATION"
	LabelProcedure    EntityLabel = "PROCEDURE"
	LabelDiagnosis    EntityLabel = "DIAGNOSIS"
	LabelBodyPart     EntityLabel = "BODY_PART"
	LabelPerson       EntityLabel = "PERSON"
	LabelOrganization EntityLabel = "ORGANIZATION"
	LabelDate         EntityLabel = "DATE"
	LabelMoney        EntityLabel = "MONEY"
	LabelLocation     EntityLabel = "LOCATION"
	LabelQuantity     EntityLabel = "QUANTITY"
	LabelOther        EntityLabel = "OTHER"
)

var knownLabels = map[EntityLabel]struct{}{
	LabelMedication:   {},
	LabelProcedure:    {},
	LabelDiagnosis:    {},
	LabelBodyPart:     {},
	LabelPerson:       {},
	LabelOrganization: {},
	LabelDate:         {},
	LabelMoney:        {},
	LabelLocation:     {},
	LabelQuantity:     {},
	LabelOther:        {},
}

// ParseEntityLabel maps an arbitrary label string onto the taxonomy,
// falling back to LabelOther for anything unrecognized.
func ParseEntityLabel(s string) EntityLabel {
	l := EntityLabel(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownLabels[l]; ok {
		return l
	}
	return LabelOther
}

// KnownLabel reports whether s names a taxonomy label after case folding.
func KnownLabel(s string) bool {
	_, ok := knownLabels[EntityLabel(strings.ToUpper(strings.TrimSpace(s)))]
	return ok
}

// Entity is a labeled span of recognized text. Offsets index into the owning
// document's ExtractedText: 0 <= Start < End <= len(text). Entities are
// immutable once attached to a document.
type Entity struct {
	Text       string      `json:"text"`
	Label      EntityLabel `json:"label"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Confidence float64     `json:"confidence"`
}

// ValidSpan reports whether the entity's offsets index into text of the
// given length.
func (e Entity) ValidSpan(textLen int) bool {
	return e.Start >= 0 && e.Start < e.End && e.End <= textLen
}
