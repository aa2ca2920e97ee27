package prompt

import (
	"strings"
	"unicode/utf8"
)

type Source string

const (
	SourceEnhanced Source = "enhanced"
	SourceBase     Source = "base"
	SourceFallback Source = "fallback"
)

// Provenance is the prompt selected for rendering and the tier it came from.
type Provenance struct {
	Text           string `json:"text"`
	Source         Source `json:"source"`
	BaseLength     int    `json:"baseLength"`
	EnhancedLength int    `json:"enhancedLength"`
	FinalLength    int    `json:"finalLength"`
}

// Resolve picks the authoritative prompt in strict priority order: the
// enhanced prompt, then the base prompt, then the template. A prompt made
// only of whitespace counts as empty.
func Resolve(enhanced *string, base string, template string) Provenance {
	p := Provenance{
		BaseLength: utf8.RuneCountInString(base),
	}
	if enhanced != nil {
		p.EnhancedLength = utf8.RuneCountInString(*enhanced)
	}

	switch {
	case enhanced != nil && !isBlank(*enhanced):
		p.Text = *enhanced
		p.Source = SourceEnhanced
	case !isBlank(base):
		p.Text = base
		p.Source = SourceBase
	default:
		p.Text = template
		p.Source = SourceFallback
	}

	p.FinalLength = utf8.RuneCountInString(p.Text)
	return p
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
