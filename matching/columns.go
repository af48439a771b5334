package matching

import "sync"

// ColumnCandidates lists header names tried, case-insensitively, when
// auto-detecting the name, id and group columns of a CSV/TSV file.
type ColumnCandidates struct {
	Name  []string `json:"name"`
	ID    []string `json:"id"`
	Group []string `json:"group"`
}

var (
	columnCandidatesMu  sync.RWMutex
	activeColumnOptions = defaultColumnCandidates()
)

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Name:  []string{"name", "full_name", "fullname", "company", "organization", "entity", "label", "title"},
		ID:    []string{"id", "identifier", "key", "record_id", "uid"},
		Group: []string{"group", "block", "country", "category", "region"},
	}
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return defaultColumnCandidates().clone()
}

// SetColumnCandidates updates the candidates used during auto-detection.
// Nil fields fall back to the built-in defaults.
func SetColumnCandidates(candidates ColumnCandidates) {
	columnCandidatesMu.Lock()
	defer columnCandidatesMu.Unlock()
	activeColumnOptions = candidates.withDefaults()
}

func getColumnCandidates() ColumnCandidates {
	columnCandidatesMu.RLock()
	defer columnCandidatesMu.RUnlock()
	return activeColumnOptions.clone()
}

func (c ColumnCandidates) withDefaults() ColumnCandidates {
	defaults := defaultColumnCandidates()
	return ColumnCandidates{
		Name:  pickStrings(c.Name, defaults.Name),
		ID:    pickStrings(c.ID, defaults.ID),
		Group: pickStrings(c.Group, defaults.Group),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		Name:  cloneStrings(c.Name),
		ID:    cloneStrings(c.ID),
		Group: cloneStrings(c.Group),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
