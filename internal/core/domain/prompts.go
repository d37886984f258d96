package domain

import "strings"

// PromptSet holds the system prompts and user templates of every LLM stage.
type PromptSet struct {
	IntentClassifier   string `yaml:"intent_classifier"`
	KeywordGeneration  string `yaml:"keyword_generation"`
	SnippetAnalysis    string `yaml:"snippet_analysis"`
	DocumentAnalysis   string `yaml:"document_analysis"`
	CrossAnalysis      string `yaml:"cross_analysis"`
	TextRecommendation string `yaml:"text_recommendation"`
	Interpretation     string `yaml:"interpretation"`
	Chat               string `yaml:"chat"`
}

// RenderPrompt replaces {{name}} placeholders. Unknown placeholders stay as they are.
func RenderPrompt(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
