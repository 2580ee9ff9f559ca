package socrata

import (
	"bytes"
	"encoding/json"
)

// TriBool is a nullable boolean that tolerates the portal returning either
// JSON booleans or the strings "true"/"false". Absent or unrecognised values
// stay unknown.
type TriBool struct {
	Known bool
	Value bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TriBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null":
		return nil
	case "true", `"true"`:
		t.Known, t.Value = true, true
		return nil
	case "false", `"false"`:
		t.Known, t.Value = true, false
		return nil
	}
	return nil
}

// CrimeRecord mirrors one row of the Chicago crime dataset as returned by the
// SODA endpoint. Numeric fields arrive as strings and are cast during
// cleaning; dirty values become NULLs rather than aborting the batch.
type CrimeRecord struct {
	ID                  string  `json:"id"`
	CaseNumber          string  `json:"case_number"`
	Date                string  `json:"date"`
	PrimaryType         string  `json:"primary_type"`
	Description         string  `json:"description"`
	LocationDescription string  `json:"location_description"`
	Arrest              TriBool `json:"arrest"`
	Domestic            TriBool `json:"domestic"`
	FBICode             string  `json:"fbi_code"`
	IUCR                string  `json:"iucr"`
	Beat                string  `json:"beat"`
	Ward                string  `json:"ward"`
	Year                string  `json:"year"`
	Latitude            string  `json:"latitude"`
	Longitude           string  `json:"longitude"`
}

var _ json.Unmarshaler = (*TriBool)(nil)
