// Package forms tracks which editable forms currently hold unsaved input.
// The refresh scheduler consults it before invalidating anything, so a
// background refetch never clobbers an edit in progress.
package forms

import (
	"sort"
	"sync"
)

// Registry is a process-wide ledger of form dirty flags. Each form is the
// sole legitimate writer of its own flag, so last-writer-wins per key is
// sufficient; the mutex only protects the map itself.
type Registry struct {
	mu    sync.RWMutex
	dirty map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{dirty: make(map[string]bool)}
}

// Register ensures an entry exists for formID with a clean flag. Calling it
// again for a known form is a no-op and does not reset the flag.
func (r *Registry) Register(formID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dirty[formID]; !ok {
		r.dirty[formID] = false
	}
}

// Unregister removes the form's entry, typically on unmount or after a
// successful save.
func (r *Registry) Unregister(formID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dirty, formID)
}

// MarkDirty overwrites the form's flag. Unknown form ids are ignored so a
// straggling update after unmount cannot resurrect an entry.
func (r *Registry) MarkDirty(formID string, dirty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dirty[formID]; ok {
		r.dirty[formID] = dirty
	}
}

// HasUnsaved reports whether any registered form holds unsaved input.
func (r *Registry) HasUnsaved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.dirty {
		if d {
			return true
		}
	}
	return false
}

// UnsavedIDs returns the ids of all dirty forms, sorted for stable output.
func (r *Registry) UnsavedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, d := range r.dirty {
		if d {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered forms, dirty or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty)
}
