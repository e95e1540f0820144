// Package parser registers every built-in input format and resolves the
// format for an import.
package parser

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/geoimport/internal/core"

	// Register formats.
	_ "github.com/JonMunkholm/geoimport/internal/parser/csvparser"
	_ "github.com/JonMunkholm/geoimport/internal/parser/jsonparser"
)

// Auto selects the format from the file name.
const Auto = "auto"

// Resolve returns the format named by name, or the one matching path when
// name is empty or "auto".
func Resolve(name, path string) (core.Format, error) {
	if name == "" || strings.EqualFold(name, Auto) {
		f, ok := core.DetectFormat(path)
		if !ok {
			return core.Format{}, fmt.Errorf("unknown format for %s: use --format with one of %s", path, names())
		}
		return f, nil
	}

	f, ok := core.LookupFormat(name)
	if !ok {
		return core.Format{}, fmt.Errorf("unknown format %q: want one of %s", name, names())
	}
	return f, nil
}

func names() string {
	formats := core.Formats()
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = f.Name
	}
	return strings.Join(out, ", ")
}
