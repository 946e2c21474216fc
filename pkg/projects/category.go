// Package projects turns GitHub repositories into portfolio project
// entries: categorization, visibility and presentation metadata.
package projects

import (
	"strings"
)

// Category is a portfolio project category.
type Category string

// Categories in priority order. Categorize returns the first that matches.
const (
	CategorySecurity   Category = "Security"
	CategoryAutomation Category = "Automation"
	CategoryAI         Category = "AI"
	CategoryWeb        Category = "Web"
	CategoryPython     Category = "Python"
	CategorySystems    Category = "Systems"
	CategoryOther      Category = "Other"
)

// Categories lists every category in priority order.
var Categories = []Category{
	CategorySecurity,
	CategoryAutomation,
	CategoryAI,
	CategoryWeb,
	CategoryPython,
	CategorySystems,
	CategoryOther,
}

// Categorize assigns a repository to exactly one category from its primary
// language, topics, name and description. Topics are joined with spaces
// and matched as substrings, case-insensitively.
func Categorize(language string, topics []string, name, description string) Category {
	language = strings.ToLower(language)
	topicText := strings.ToLower(strings.Join(topics, " "))
	name = strings.ToLower(name)
	description = strings.ToLower(description)

	switch {
	case strings.Contains(topicText, "security"),
		strings.Contains(name, "security"),
		strings.Contains(description, "security"),
		strings.Contains(name, "hack"):
		return CategorySecurity

	case strings.Contains(topicText, "automation"),
		strings.Contains(topicText, "bot"),
		strings.Contains(name, "automation"),
		strings.Contains(description, "automation"):
		return CategoryAutomation

	case strings.Contains(topicText, "ai"),
		strings.Contains(topicText, "ml"),
		strings.Contains(topicText, "machine-learning"),
		strings.Contains(description, "ai"),
		strings.Contains(description, "machine learning"):
		return CategoryAI

	case language == "javascript",
		language == "typescript",
		language == "html",
		language == "css",
		strings.Contains(topicText, "web"),
		strings.Contains(topicText, "react"),
		strings.Contains(topicText, "nextjs"):
		return CategoryWeb

	case language == "python":
		return CategoryPython

	case language == "c", language == "c++", language == "java":
		return CategorySystems

	default:
		return CategoryOther
	}
}
