package model

// GenericRecord is one survey response as decoded from the API.
// Numbers are kept as json.Number so values round-trip without reformatting.
type GenericRecord map[string]interface{}

// Raw record keys the normalizer touches
const (
	FieldID        = "id"
	FieldGender    = "gender"
	FieldAge       = "age"
	FieldCountry   = "country"
	FieldComments  = "comments"
	FieldTimestamp = "timestamp"
	FieldWeights   = "weights"
)

// WeightKeys names the entries of the API's weights array, in array order.
var WeightKeys = []string{
	"housing",
	"income",
	"jobs",
	"community",
	"education",
	"environment",
	"civic engagement",
	"health",
	"life_satisfaction",
	"safety",
	"work_life_balance",
}

// CSVColumns returns the fixed CSV header: identity fields, every weight
// category in canonical order, then the comment.
func CSVColumns() []string {
	cols := []string{FieldID, FieldGender, FieldAge, FieldCountry}
	cols = append(cols, WeightKeys...)
	return append(cols, FieldComments)
}

// Format identifies one output file type
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Formats lists the output formats in the order they are flushed.
var Formats = []Format{FormatJSON, FormatCSV}

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}
