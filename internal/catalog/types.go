// Package catalog mirrors the static game-data catalog published by Data Dragon:
// the live patch version, the champion map and the reforged rune tree.
package catalog

import (
	"maps"
	"slices"
	"strings"
)

// Champion is one entry of the champion map
type Champion struct {
	ID    string   `json:"id"`
	Key   string   `json:"key"`
	Name  string   `json:"name"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// ChampionMap is the champion catalog for one patch, keyed by champion id
type ChampionMap struct {
	Version   string              `json:"version"`
	Champions map[string]Champion `json:"champions"`

	index map[string]string
}

// NewChampionMap builds a champion map with its case-insensitive lookup index
func NewChampionMap(version string, champions map[string]Champion) *ChampionMap {
	m := &ChampionMap{
		Version:   version,
		Champions: champions,
		index:     make(map[string]string, len(champions)),
	}
	for id, champ := range champions {
		m.index[strings.ToLower(id)] = id
		if champ.Name != "" {
			m.index[normalizeName(champ.Name)] = id
		}
	}
	return m
}

// Lookup resolves a champion by id or display name, ignoring case
func (m *ChampionMap) Lookup(id string) (Champion, bool) {
	if m == nil {
		return Champion{}, false
	}
	if champ, ok := m.Champions[id]; ok {
		return champ, true
	}
	key, ok := m.index[strings.ToLower(id)]
	if !ok {
		key, ok = m.index[normalizeName(id)]
	}
	if !ok {
		return Champion{}, false
	}
	champ, ok := m.Champions[key]
	return champ, ok
}

// Len returns the number of champions
func (m *ChampionMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Champions)
}

// Clone returns a deep copy
func (m *ChampionMap) Clone() *ChampionMap {
	if m == nil {
		return nil
	}
	champions := make(map[string]Champion, len(m.Champions))
	for id, champ := range m.Champions {
		champ.Tags = slices.Clone(champ.Tags)
		champions[id] = champ
	}
	return &ChampionMap{
		Version:   m.Version,
		Champions: champions,
		index:     maps.Clone(m.index),
	}
}

// normalizeName folds display names like "Kai'Sa" or "Lee Sin" onto "kaisa" and "leesin"
func normalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Rune is a single perk inside a rune slot
type Rune struct {
	ID        int    `json:"id"`
	Key       string `json:"key"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	ShortDesc string `json:"shortDesc,omitempty"`
}

// RuneSlot is one row of a rune style
type RuneSlot struct {
	Runes []Rune `json:"runes"`
}

// RuneStyle is a rune path such as Precision or Domination
type RuneStyle struct {
	ID    int        `json:"id"`
	Key   string     `json:"key"`
	Name  string     `json:"name"`
	Icon  string     `json:"icon"`
	Slots []RuneSlot `json:"slots"`
}

// RuneTree is the ordered list of rune styles for one patch
type RuneTree struct {
	Version string      `json:"version"`
	Styles  []RuneStyle `json:"styles"`
}

// Clone returns a deep copy
func (t *RuneTree) Clone() *RuneTree {
	if t == nil {
		return nil
	}
	styles := make([]RuneStyle, len(t.Styles))
	for i, style := range t.Styles {
		slots := make([]RuneSlot, len(style.Slots))
		for j, slot := range style.Slots {
			slots[j] = RuneSlot{Runes: slices.Clone(slot.Runes)}
		}
		style.Slots = slots
		styles[i] = style
	}
	return &RuneTree{Version: t.Version, Styles: styles}
}

// Style returns the style with the given id
func (t *RuneTree) Style(id int) (RuneStyle, bool) {
	if t == nil {
		return RuneStyle{}, false
	}
	for _, style := range t.Styles {
		if style.ID == id {
			return style, true
		}
	}
	return RuneStyle{}, false
}
