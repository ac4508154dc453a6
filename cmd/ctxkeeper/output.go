package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// outputJSON writes v as indented JSON followed by a newline.
func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}
