package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults returns the built-in prompt catalog.
func Defaults() (domain.PromptSet, error) {
	var set domain.PromptSet
	if err := yaml.Unmarshal(defaultsYAML, &set); err != nil {
		return domain.PromptSet{}, fmt.Errorf("parse default prompts: %w", err)
	}
	return set, nil
}

// Load returns the built-in catalog with every non-empty entry of the YAML file at
// path laid over it. An empty path returns the defaults.
func Load(path string) (domain.PromptSet, error) {
	set, err := Defaults()
	if err != nil {
		return domain.PromptSet{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return set, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.PromptSet{}, fmt.Errorf("read prompts %s: %w", path, err)
	}
	var override domain.PromptSet
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return domain.PromptSet{}, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	return merge(set, override), nil
}

func merge(base, override domain.PromptSet) domain.PromptSet {
	pick := func(dst *string, src string) {
		if strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	pick(&base.IntentClassifier, override.IntentClassifier)
	pick(&base.KeywordGeneration, override.KeywordGeneration)
	pick(&base.SnippetAnalysis, override.SnippetAnalysis)
	pick(&base.DocumentAnalysis, override.DocumentAnalysis)
	pick(&base.CrossAnalysis, override.CrossAnalysis)
	pick(&base.TextRecommendation, override.TextRecommendation)
	pick(&base.Interpretation, override.Interpretation)
	pick(&base.Chat, override.Chat)
	return base
}
