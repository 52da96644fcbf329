package output

import (
	"encoding/json"
	"os"
)

// Response represents a standard JSON response
type Response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Success wraps a successful response with data
func Success(data interface{}) Response {
	return Response{OK: true, Data: data}
}

// Error wraps an error in a response
func Error(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

// Print prints a value as JSON to stdout
func Print(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	// Default to compact JSON for machine consumption. Enable pretty JSON
	// for humans via env var: MISSIONCTL_PRETTY_JSON=1.
	if os.Getenv("MISSIONCTL_PRETTY_JSON") == "1" || os.Getenv("MISSIONCTL_PRETTY_JSON") == "true" {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// PrintSuccess prints a success response
func PrintSuccess(data interface{}) error {
	return Print(Success(data))
}

// PrintError prints an error response
func PrintError(err error) error {
	return Print(Error(err))
}
