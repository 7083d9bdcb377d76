package main

import (
	"encoding/json"
	"os"
	"sync"
)

// OverrideSource supplies the partial custom-override map applied on top of
// the base generator each tick in custom mode.
type OverrideSource interface {
	Overrides() map[string]float64
}

// StaticOverrides serves a fixed map; used for the control document's custom
// block and in tests.
type StaticOverrides map[string]float64

func (o StaticOverrides) Overrides() map[string]float64 { return o }

// FileOverrides re-reads the control document's custom block between ticks,
// caching on mtime so an unchanged file costs one stat per tick. All failures
// yield an empty map: overrides are best-effort, never a fault.
type FileOverrides struct {
	path    string
	allowed map[string]bool

	mu     sync.Mutex
	mtime  int64
	cached map[string]float64
}

func NewFileOverrides(path string, allowedSignals []string) *FileOverrides {
	allowed := make(map[string]bool, len(allowedSignals))
	for _, name := range allowedSignals {
		allowed[name] = true
	}
	return &FileOverrides{path: path, allowed: allowed}
}

func (f *FileOverrides) Overrides() map[string]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := os.Stat(f.path)
	if err != nil {
		return nil
	}
	mtime := st.ModTime().UnixNano()
	if mtime == f.mtime && f.cached != nil {
		return f.cached
	}
	f.mtime = mtime
	f.cached = f.load()
	return f.cached
}

func (f *FileOverrides) load() map[string]float64 {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}

	// Prefer an explicit custom block; otherwise treat the root as the map.
	src := data
	if raw, ok := doc["custom"]; ok {
		src = raw
	}

	var values map[string]float64
	if err := json.Unmarshal(src, &values); err != nil {
		// Root documents mix signal values with config fields; pick out the
		// numeric entries that name catalog signals.
		var loose map[string]any
		if err := json.Unmarshal(src, &loose); err != nil {
			return nil
		}
		values = make(map[string]float64, len(loose))
		for k, v := range loose {
			if n, ok := v.(float64); ok {
				values[k] = n
			}
		}
	}

	out := make(map[string]float64, len(values))
	for k, v := range values {
		if f.allowed[k] {
			out[k] = v
		}
	}
	return out
}
