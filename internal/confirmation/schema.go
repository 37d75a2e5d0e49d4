package confirmation

import (
	_ "embed"
	"encoding/json"
)

// responseSchema is the structured-output constraint sent to the OCR and
// repair models. It mirrors the wire structs in types.go; keep the two in
// sync when the document format changes.
//
//go:embed schema.json
var responseSchema []byte

// ResponseSchema returns the JSON schema for the extraction envelope.
func ResponseSchema() json.RawMessage {
	return json.RawMessage(responseSchema)
}
