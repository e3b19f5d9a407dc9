package analyzer

import "strings"

// techKeywords is the fixed vocabulary scanned for in README text. Order is
// the order keywords are reported in.
var techKeywords = []string{
	"python", "javascript", "typescript", "golang", "rust", "kotlin", "swift",
	"react", "vue", "angular", "svelte", "next.js", "node",
	"django", "flask", "fastapi", "express", "spring", "rails", "laravel",
	"docker", "kubernetes", "terraform", "ansible", "aws", "azure", "gcp",
	"postgresql", "mysql", "mongodb", "redis", "sqlite", "graphql", "kafka",
	"tensorflow", "pytorch", "pandas", "numpy", "scikit-learn",
	"flutter", "tailwind", "webpack", "nginx",
}

// TechKeywords returns a copy of the keyword vocabulary
func TechKeywords() []string {
	return append([]string(nil), techKeywords...)
}

// ExtractTechStack reports every vocabulary keyword found as a
// case-insensitive substring of readme, each at most once.
func ExtractTechStack(readme string) []string {
	found := make([]string, 0)
	if readme == "" {
		return found
	}
	text := strings.ToLower(readme)
	for _, keyword := range techKeywords {
		if strings.Contains(text, keyword) {
			found = append(found, keyword)
		}
	}
	return found
}
