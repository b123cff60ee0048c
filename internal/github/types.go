package github

// ContentKind distinguishes draft-backed from issue-backed board items.
// The update path differs between the two, so the kind is recorded in the
// identity store at creation and must survive re-anchoring.
type ContentKind string

const (
	ContentDraft ContentKind = "draft"
	ContentIssue ContentKind = "issue"
)

// Project is the board header returned by GetProject.
type Project struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// Item is one board item with its content reference and field values.
type Item struct {
	ID          string
	ContentID   string
	ContentKind ContentKind
	Title       string
	Body        string
	// FieldText maps field name to text value for text fields.
	FieldText map[string]string
	// FieldOption maps field name to the selected option name for
	// single-select fields.
	FieldOption map[string]string
}

// TMID returns the identity marker value carried by the item, if any.
func (it *Item) TMID() string {
	return it.FieldText[FieldTMID]
}

// Field describes one board field.
type Field struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	DataType string       `json:"dataType"`
	Options  []FieldOption `json:"options"`
}

// FieldOption is one choice of a single-select field.
type FieldOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Field data types as the API spells them.
const (
	FieldTypeText         = "TEXT"
	FieldTypeNumber       = "NUMBER"
	FieldTypeDate         = "DATE"
	FieldTypeSingleSelect = "SINGLE_SELECT"
	FieldTypeIteration    = "ITERATION"
)

// FieldTMID is the identity marker field name. It is referenced here rather
// than in the catalog because the client's item parsing wants it too.
const FieldTMID = "TM_ID"

// FieldValue is the polymorphic value accepted by UpdateItemFieldValue.
// Exactly one member should be set.
type FieldValue struct {
	Text               *string  `json:"text,omitempty"`
	Number             *float64 `json:"number,omitempty"`
	Date               *string  `json:"date,omitempty"`
	SingleSelectOption string   `json:"singleSelectOptionId,omitempty"`
}

// TextValue builds a text field value.
func TextValue(s string) FieldValue { return FieldValue{Text: &s} }

// OptionValue builds a single-select field value from an option id.
func OptionValue(optionID string) FieldValue {
	return FieldValue{SingleSelectOption: optionID}
}

// CreateItemResult carries the two ids produced when an item is created:
// the project item id (field updates, deletion) and the content id (body
// updates, whose mutation depends on the content kind).
type CreateItemResult struct {
	ItemID      string
	ContentID   string
	ContentKind ContentKind
}
