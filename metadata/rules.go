package metadata

import "sort"

// Field names one metadata field.
type Field string

const (
	FieldReleaseGroup Field = "release_group"
	FieldAnimeName    Field = "anime_name"
	FieldSeason       Field = "season"
	FieldEpisodes     Field = "episodes"
	FieldQuality      Field = "quality"
	FieldAudio        Field = "audio_language"
	FieldSubtitle     Field = "subtitle_language"
	FieldDubbed       Field = "dubbed"
)

// DefaultRule is reported when no rule of a field matched.
const DefaultRule = "default"

// Input is the text a rule can inspect.
type Input struct {
	Title       string
	Description string
	Category    string
	Submitter   string
	Files       []string
}

// Rule extracts one field. Lower Priority runs first.
type Rule[T any] struct {
	Field    Field
	Priority int
	Name     string
	Match    func(Input) (T, bool)
}

// RuleSet is the ordered rule list of one field plus its sentinel default.
type RuleSet[T any] struct {
	Field    Field
	Fallback T
	rules    []Rule[T]
}

func newRuleSet[T any](field Field, fallback T, rules ...Rule[T]) RuleSet[T] {
	sorted := make([]Rule[T], len(rules))
	copy(sorted, rules)
	for i := range sorted {
		sorted[i].Field = field
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return RuleSet[T]{Field: field, Fallback: fallback, rules: sorted}
}

// Apply returns the value of the first matching rule and its name, or the
// fallback and DefaultRule.
func (s RuleSet[T]) Apply(in Input) (T, string) {
	for _, r := range s.rules {
		if v, ok := r.Match(in); ok {
			return v, r.Name
		}
	}
	return s.Fallback, DefaultRule
}

// Names lists rule names in evaluation order.
func (s RuleSet[T]) Names() []string {
	names := make([]string, len(s.rules))
	for i, r := range s.rules {
		names[i] = r.Name
	}
	return names
}
