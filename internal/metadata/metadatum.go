// Package metadata indexes a REDCap project's data dictionary and casts
// records through it.
package metadata

// Columns is the platform's import column order for metadata rows
var Columns = []string{
	"field_name",
	"form_name",
	"section_header",
	"field_type",
	"field_label",
	"select_choices_or_calculations",
	"field_note",
	"text_validation_type_or_show_slider_number",
	"text_validation_min",
	"text_validation_max",
	"identifier",
	"branching_logic",
	"required_field",
	"custom_alignment",
	"question_number",
	"matrix_group_name",
	"matrix_ranking",
	"field_annotation",
}

// DefaultGroupBy is the column migration scripts are grouped by
const DefaultGroupBy = "field_type"

// FieldTypeCheckbox is the only field type exported under several names
const FieldTypeCheckbox = "checkbox"

// Metadatum is one row of the data dictionary, exactly as exported
type Metadatum struct {
	FieldName       string `json:"field_name"`
	FormName        string `json:"form_name"`
	SectionHeader   string `json:"section_header"`
	FieldType       string `json:"field_type"`
	FieldLabel      string `json:"field_label"`
	SelectChoices   string `json:"select_choices_or_calculations"`
	FieldNote       string `json:"field_note"`
	ValidationType  string `json:"text_validation_type_or_show_slider_number"`
	ValidationMin   string `json:"text_validation_min"`
	ValidationMax   string `json:"text_validation_max"`
	Identifier      string `json:"identifier"`
	BranchingLogic  string `json:"branching_logic"`
	RequiredField   string `json:"required_field"`
	CustomAlignment string `json:"custom_alignment"`
	QuestionNumber  string `json:"question_number"`
	MatrixGroupName string `json:"matrix_group_name"`
	MatrixRanking   string `json:"matrix_ranking"`
	FieldAnnotation string `json:"field_annotation"`
}

// Row returns the metadatum's values in Columns order
func (m Metadatum) Row() []string {
	return []string{
		m.FieldName,
		m.FormName,
		m.SectionHeader,
		m.FieldType,
		m.FieldLabel,
		m.SelectChoices,
		m.FieldNote,
		m.ValidationType,
		m.ValidationMin,
		m.ValidationMax,
		m.Identifier,
		m.BranchingLogic,
		m.RequiredField,
		m.CustomAlignment,
		m.QuestionNumber,
		m.MatrixGroupName,
		m.MatrixRanking,
		m.FieldAnnotation,
	}
}

// Value returns the value of the named column
func (m Metadatum) Value(column string) (string, bool) {
	i := columnIndex(column)
	if i < 0 {
		return "", false
	}
	return m.Row()[i], true
}

// IsColumn reports whether name is one of the 18 metadata columns
func IsColumn(name string) bool {
	return columnIndex(name) >= 0
}

func columnIndex(name string) int {
	for i, c := range Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// FieldName maps an export name back to its canonical field. ChoiceValue is
// set only for the per-choice export names of a checkbox field.
type FieldName struct {
	ExportFieldName   string `json:"export_field_name"`
	OriginalFieldName string `json:"original_field_name"`
	ChoiceValue       string `json:"choice_value,omitempty"`
}

// Resolved is a metadatum with its branching logic translated to host form.
// Values handed out by Index.Get are shared and must not be modified.
type Resolved struct {
	Metadatum

	ExportName  string
	ChoiceValue string
	RawLogic    string
}

// Tag returns the validation type the field's values are cast with.
// Only text fields carry one; every other field type is cast as text.
func (m Metadatum) Tag() string {
	if m.FieldType != "text" {
		return ""
	}
	return m.ValidationType
}

// Record maps export names to wire strings
type Record map[string]string

// TypedRecord maps export names to values produced by the codec
type TypedRecord map[string]interface{}
