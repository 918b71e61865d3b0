package generator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptySummary is returned when a model output yields no summary text.
var ErrEmptySummary = errors.New("empty summary")

const documentMarker = "document: "

// RenderPrompt builds the model input for one entity:
//
//	[1] <mention>
//	[2] <other mention>
//	...
//	document: <context>
//
// The model is expected to answer with "[1] <mention>: <summary>". Mentions
// are written on one line with inner whitespace collapsed.
func RenderPrompt(mention string, others []string, context string) string {
	var sb strings.Builder
	sb.Grow(len(mention) + len(context) + 32)

	sb.WriteString("[1] ")
	sb.WriteString(flatten(mention))
	sb.WriteByte('\n')
	for i, other := range others {
		fmt.Fprintf(&sb, "[%d] %s\n", i+2, flatten(other))
	}
	sb.WriteString(documentMarker)
	sb.WriteString(context)
	return sb.String()
}

// ParsePrompt splits a prompt produced by RenderPrompt back into its mention and context.
func ParsePrompt(prompt string) (mention, context string) {
	first, _, _ := strings.Cut(prompt, "\n")
	mention = strings.TrimPrefix(first, "[1] ")
	if idx := strings.Index(prompt, "\n"+documentMarker); idx >= 0 {
		context = prompt[idx+1+len(documentMarker):]
	}
	return mention, context
}

// ParseSummary extracts the summary for mention from a raw model output.
//
// Only the first line is used, with " [" treated as a line break. The "[1] "
// marker and a leading "<mention>:" are stripped. When the model kept the marker
// but renamed the entity, everything after the first colon is the summary.
func ParseSummary(mention, output string) (string, error) {
	line := strings.TrimSpace(output)
	line = strings.ReplaceAll(line, " [", "\n[")
	line, _, _ = strings.Cut(line, "\n")
	line = strings.TrimSpace(line)

	marked := strings.HasPrefix(line, "[1]")
	line = strings.TrimSpace(strings.TrimPrefix(line, "[1]"))

	mention = flatten(mention)
	if mention != "" && len(line) >= len(mention) && strings.EqualFold(line[:len(mention)], mention) {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line[len(mention):]), ":"); ok {
			line = rest
		}
	} else if marked {
		if _, rest, ok := strings.Cut(line, ":"); ok {
			line = rest
		}
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%w: unusable output %q", ErrEmptySummary, truncate(output, 80))
	}
	return line, nil
}

// flatten collapses every whitespace run, line breaks included, to one space.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
