package learning

import (
	"regexp"
	"strings"
)

// Classification is the result of classifying one task description.
type Classification struct {
	// Domain is empty when no keyword set matched.
	Domain string
	// Pattern is empty when neither a template nor a domain matched.
	Pattern string
}

// Classifier maps task text to a domain and a phrasing pattern.
type Classifier interface {
	Classify(text string) Classification
}

// DomainRule maps a domain label to the substrings that identify it.
type DomainRule struct {
	Domain   string
	Keywords []string
}

// PatternRule maps a phrasing template to a pattern key.
type PatternRule struct {
	Key     string
	Pattern *regexp.Regexp
}

// RuleClassifier is the ordered first-match-wins Classifier.
type RuleClassifier struct {
	domains  []DomainRule
	patterns []PatternRule
}

var _ Classifier = (*RuleClassifier)(nil)

// NewRuleClassifier creates a classifier from ordered rule lists.
func NewRuleClassifier(domains []DomainRule, patterns []PatternRule) *RuleClassifier {
	return &RuleClassifier{domains: domains, patterns: patterns}
}

// NewDefaultClassifier creates a classifier with the built-in domains and templates.
func NewDefaultClassifier() *RuleClassifier {
	return NewRuleClassifier(DefaultDomains(), DefaultPatterns())
}

// DefaultDomains returns the built-in keyword sets in match order.
func DefaultDomains() []DomainRule {
	return []DomainRule{
		{Domain: "api", Keywords: []string{"api", "endpoint", "rest", "graphql", "route", "webhook"}},
		{Domain: "database", Keywords: []string{"database", "sql", "schema", "migration", "table", "query", "index"}},
		{Domain: "frontend", Keywords: []string{"frontend", "component", "react", "css", "page", "layout", "user interface"}},
		{Domain: "backend", Keywords: []string{"backend", "server", "service", "queue", "cache", "cron"}},
		{Domain: "ai", Keywords: []string{"llm", "prompt", "embedding", "machine learning", "openai", "anthropic"}},
		{Domain: "auth", Keywords: []string{"auth", "login", "oauth", "jwt", "password", "permission"}},
		{Domain: "testing", Keywords: []string{"test", "coverage", "e2e", "qa"}},
		{Domain: "devops", Keywords: []string{"deploy", "docker", "kubernetes", "ci/cd", "pipeline", "terraform", "infra"}},
	}
}

// DefaultPatterns returns the built-in phrasing templates in match order.
func DefaultPatterns() []PatternRule {
	return []PatternRule{
		{Key: "implement-endpoint", Pattern: regexp.MustCompile(`implement\s+(\w+)\s+endpoint`)},
		{Key: "create-migration", Pattern: regexp.MustCompile(`(?:add|create|write)\s+(?:\w+\s+)?(?:migration|table)`)},
		{Key: "create-component", Pattern: regexp.MustCompile(`(?:build|create|add)\s+(?:\w+\s+)?component`)},
		{Key: "fix-bug", Pattern: regexp.MustCompile(`(?:fix|resolve)\s+(?:\w+\s+)?(?:bug|issue|crash)`)},
		{Key: "write-tests", Pattern: regexp.MustCompile(`(?:write|add)\s+(?:\w+\s+)?tests?\b`)},
		{Key: "add-auth", Pattern: regexp.MustCompile(`(?:add|implement)\s+(?:\w+\s+)?(?:auth|login)`)},
		{Key: "refactor-module", Pattern: regexp.MustCompile(`refactor\s+(?:the\s+)?(\w+)`)},
		{Key: "update-docs", Pattern: regexp.MustCompile(`(?:update|write)\s+(?:the\s+)?(?:docs|documentation|readme)`)},
		{Key: "deploy-service", Pattern: regexp.MustCompile(`deploy\s+(?:the\s+)?(\w+)`)},
	}
}

// Classify implements Classifier.
func (c *RuleClassifier) Classify(text string) Classification {
	lower := strings.ToLower(text)

	var out Classification
	for _, d := range c.domains {
		if containsAny(lower, d.Keywords) {
			out.Domain = d.Domain
			break
		}
	}

	for _, p := range c.patterns {
		if p.Pattern.MatchString(lower) {
			out.Pattern = p.Key
			return out
		}
	}

	if out.Domain != "" {
		out.Pattern = out.Domain + "-task"
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
