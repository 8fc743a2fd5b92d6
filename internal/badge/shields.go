package badge

import "encoding/json"

type shieldsEndpoint struct {
	SchemaVersion int    `json:"schemaVersion"`
	Label         string `json:"label"`
	Message       string `json:"message"`
	Color         string `json:"color"`
}

// ShieldsJSON returns a shields.io endpoint JSON document.
func ShieldsJSON(label, message, color string) string {
	b, _ := json.MarshalIndent(shieldsEndpoint{
		SchemaVersion: 1,
		Label:         label,
		Message:       message,
		Color:         color,
	}, "", "  ")
	return string(b)
}
