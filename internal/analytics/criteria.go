package analytics

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// DefaultConfig is the query configuration used when a caller does not supply one.
const DefaultConfig = `{"responseFormat":"json"}`

// QueryConfig is the CONFIG document sent with an export job.
type QueryConfig struct {
	ResponseFormat string `json:"responseFormat"`
	Criteria       string `json:"criteria,omitempty"`
}

// Encode renders the configuration as compact JSON. Criteria operators are not HTML-escaped.
func (c QueryConfig) Encode() (string, error) {
	if c.ResponseFormat == "" {
		c.ResponseFormat = "json"
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return "", errors.Wrap(err, "failed to encode query config")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// FieldEquals builds "field"=value. The value is inserted as-is, so it must be a numeric or boolean literal.
func FieldEquals(field, value string) string {
	return `"` + field + `"=` + value
}

// QualifiedFieldEquals builds "view"."field"='value'.
func QualifiedFieldEquals(view, field, value string) string {
	return `"` + view + `"."` + field + `"='` + value + `'`
}
