package core

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Format describes one input serialization a Parser understands.
type Format struct {
	Name       string   // Flag value: "json", "csv"
	Extensions []string // Inner extensions, e.g. ".json" for cities.json.gz
	New        func() Parser
}

var (
	formats   = make(map[string]Format)
	formatsMu sync.RWMutex
)

// RegisterFormat adds a format to the registry. Parser packages call it from
// init. Panics if the name is empty, already taken, or New is nil.
func RegisterFormat(f Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	key := strings.ToLower(f.Name)
	if key == "" || f.New == nil {
		panic(fmt.Sprintf("invalid format registration: %q", f.Name))
	}
	if _, exists := formats[key]; exists {
		panic(fmt.Sprintf("format already registered: %s", key))
	}
	f.Name = key
	formats[key] = f
}

// LookupFormat returns a format by name (case-insensitive).
func LookupFormat(name string) (Format, bool) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	f, ok := formats[strings.ToLower(name)]
	return f, ok
}

// DetectFormat picks a format from a file name such as "cities.json.gz".
// A trailing .gz/.gzip is ignored before matching extensions.
func DetectFormat(path string) (Format, bool) {
	name := strings.ToLower(filepath.Base(path))
	for _, suffix := range []string{".gz", ".gzip"} {
		name = strings.TrimSuffix(name, suffix)
	}
	ext := filepath.Ext(name)
	if ext == "" {
		return Format{}, false
	}

	formatsMu.RLock()
	defer formatsMu.RUnlock()

	for _, f := range formats {
		for _, e := range f.Extensions {
			if strings.EqualFold(e, ext) {
				return f, true
			}
		}
	}
	return Format{}, false
}

// Formats returns all registered formats sorted by name.
func Formats() []Format {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	result := make([]Format, 0, len(formats))
	for _, f := range formats {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
