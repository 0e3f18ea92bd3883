package models

// RawRecord is one exported row in the platform's native field names.
// Values are strings on the wire; a nil pointer is a JSON null.
type RawRecord map[string]*string

// FormattedRecord is the domain-facing row returned to callers.
// Values are nil, string or json.Number.
type FormattedRecord map[string]any
