package summarize

import (
	"strings"
	"unicode/utf8"

	"github.com/hrygo/spansum/ai/span"
)

// entity groups every target sharing one id. The first occurrence fixes its
// position in the response.
type entity struct {
	id       uint64
	mentions []int // indexes into the flattened target list
}

// groupMentions merges targets with the same id into one entity, in order of
// first occurrence.
func groupMentions(targets []Target) ([]entity, []span.Target) {
	flat := make([]span.Target, len(targets))
	index := make(map[uint64]int, len(targets))
	entities := make([]entity, 0, len(targets))

	for i, t := range targets {
		flat[i] = span.Target{ID: t.ID, Start: int(t.Start), End: int(t.End)}
		pos, ok := index[t.ID]
		if !ok {
			pos = len(entities)
			index[t.ID] = pos
			entities = append(entities, entity{id: t.ID})
		}
		entities[pos].mentions = append(entities[pos].mentions, i)
	}
	return entities, flat
}

// representative picks the mention that stands for the entity: the most common
// mention text, the longest on ties, and its first occurrence. It returns the
// first resolution error when no mention is valid.
func representative(e entity, resolved []span.Resolution) (span.ConditionedInput, error) {
	counts := make(map[string]int, len(e.mentions))
	var firstErr error
	for _, i := range e.mentions {
		r := resolved[i]
		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		counts[strings.TrimSpace(r.Input.Mention)]++
	}
	if len(counts) == 0 {
		return span.ConditionedInput{}, firstErr
	}

	best, bestCount := "", -1
	for _, i := range e.mentions {
		r := resolved[i]
		if r.Err != nil {
			continue
		}
		text := strings.TrimSpace(r.Input.Mention)
		c := counts[text]
		if c > bestCount || (c == bestCount && utf8.RuneCountInString(text) > utf8.RuneCountInString(best)) {
			best, bestCount = text, c
		}
	}

	for _, i := range e.mentions {
		r := resolved[i]
		if r.Err == nil && strings.TrimSpace(r.Input.Mention) == best {
			in := r.Input
			in.TargetID = e.id
			return in, nil
		}
	}
	return span.ConditionedInput{}, firstErr
}

// otherMentions lists the representative mentions of other entities whose
// spans fall inside the window of in, without repeats.
func otherMentions(in span.ConditionedInput, all []span.ConditionedInput) []string {
	own := strings.ToLower(strings.TrimSpace(in.Mention))
	seen := map[string]bool{own: true, "": true}

	var others []string
	for _, o := range all {
		if o.TargetID == in.TargetID || !in.Window.Covers(o.Span) {
			continue
		}
		text := strings.TrimSpace(o.Mention)
		key := strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		others = append(others, text)
	}
	return others
}
