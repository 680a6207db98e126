package ansi

import (
	"sort"
	"strings"
)

// Highlighter colourizes text: the whole fragment gets a role colour and
// selected keywords are recoloured in place. It holds the always-on
// keyword maps; per-call maps come from the sink's scoped highlight state.
type Highlighter struct {
	pal    *Palette
	sep    string
	global map[string]string
	status map[string]string
}

// NewHighlighter builds a formatter over pal. sep is the field separator
// recoloured to the de-emphasis colour on every line. global maps words to
// sequences applied to all text, status maps status keywords to their
// colours; in both, an empty sequence selects the palette highlight
// colour.
func NewHighlighter(pal *Palette, sep string, global, status map[string]string) *Highlighter {
	return &Highlighter{pal: pal, sep: sep, global: global, status: status}
}

// AddKeyword registers word in the always-on highlight map. Not safe for
// use concurrently with Format; register keywords before wiring the
// highlighter into a console.
func (h *Highlighter) AddKeyword(word, seq string) {
	if h.global == nil {
		h.global = make(map[string]string)
	}
	h.global[word] = seq
}

// Format implements the console formatter contract. Keywords are matched
// longest first so shorter words only recolour the gaps longer ones leave
// behind. With colour disabled the text passes through untouched.
func (h *Highlighter) Format(text, roleColour string, high, low map[string]string) string {
	if !h.pal.Enabled {
		return text
	}

	words := make(map[string]string)
	merge := func(m map[string]string, def string) {
		for w, seq := range m {
			if w == "" || len(w) >= len(text) {
				continue
			}
			if _, dup := words[w]; dup {
				continue
			}
			if seq == "" {
				seq = def
			}
			words[w] = seq
		}
	}
	merge(high, h.pal.Highlight)
	merge(low, h.pal.Lowlight)
	merge(h.global, h.pal.Highlight)
	merge(h.status, h.pal.Highlight)
	if h.sep != "" {
		merge(map[string]string{h.sep: h.pal.Disabled}, h.pal.Disabled)
	}
	if len(words) == 0 {
		return h.pal.Reset + roleColour + text
	}

	// Longest first; ties broken lexically so output is deterministic.
	ordered := make([]string, 0, len(words))
	for w := range words {
		ordered = append(ordered, w)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	type span struct {
		text    string
		colour  string
		matched bool
	}
	spans := []span{{text: text, colour: roleColour}}
	for _, w := range ordered {
		col := words[w]
		next := make([]span, 0, len(spans))
		for _, sp := range spans {
			// A span claimed by a longer word is settled.
			if sp.matched {
				next = append(next, sp)
				continue
			}
			parts := strings.Split(sp.text, w)
			for i, part := range parts {
				if i > 0 {
					next = append(next, span{text: w, colour: col, matched: true})
				}
				next = append(next, span{text: part, colour: sp.colour})
			}
		}
		spans = next
	}

	var b strings.Builder
	for _, sp := range spans {
		if sp.text == "" {
			continue
		}
		b.WriteString(h.pal.Reset)
		b.WriteString(sp.colour)
		b.WriteString(sp.text)
	}
	return b.String()
}
