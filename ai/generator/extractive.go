package generator

import (
	"context"
	"strings"

	"github.com/hrygo/spansum/ai/document"
)

// Extractive is an offline Generator. For each prompt it answers with the first
// sentence of the context that mentions the entity, or the first sentence when
// none does. Output is deterministic and follows the "[1] mention: summary" format.
type Extractive struct{}

// NewExtractive creates the offline generator.
func NewExtractive() *Extractive {
	return &Extractive{}
}

func (*Extractive) Name() string {
	return "extractive"
}

func (e *Extractive) Generate(ctx context.Context, prompts []string) ([]string, error) {
	outputs := make([]string, len(prompts))
	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mention, text := ParsePrompt(prompt)
		outputs[i] = "[1] " + mention + ": " + pickSentence(mention, text)
	}
	return outputs, nil
}

// pickSentence 选择包含实体的首句，找不到时退回首句
func pickSentence(mention, text string) string {
	doc, err := document.Preprocess(text, document.Options{})
	if err != nil {
		return ""
	}

	sentences := doc.Sentences()
	needle := strings.ToLower(strings.TrimSpace(mention))
	if needle != "" {
		for _, s := range sentences {
			sentence := strings.TrimSpace(doc.SliceRange(s))
			if strings.Contains(strings.ToLower(sentence), needle) {
				return sentence
			}
		}
	}
	return strings.TrimSpace(doc.SliceRange(sentences[0]))
}
