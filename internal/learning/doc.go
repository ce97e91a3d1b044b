// Package learning observes task outcomes and proposes follow-up actions.
//
// # Classification
//
// A Classifier maps free task text to a domain label and a phrasing
// pattern key. The default classifier scans ordered keyword sets for the
// domain and ordered regex templates for the pattern; the first match wins
// in both cases. When only a domain matches, the pattern key falls back to
// "<domain>-task":
//
//	implement payments endpoint  ->  domain "api", pattern "implement-endpoint"
//	tune the redis cache         ->  domain "backend", pattern "backend-task"
//
// # Patterns
//
// The PatternTracker counts pattern sightings for the lifetime of the
// process and keeps the last five example strings per pattern.
//
// # Rules
//
// The RuleEngine evaluates declarative rules against a metrics snapshot.
// A rule triggers when every one of its conditions holds; a rule with no
// conditions always triggers. Evaluation has no side effects, so callers
// decide what to do with each TriggeredRule:
//
//	rules:
//	  - id: create-skill
//	    trigger: pattern
//	    action: create_skill
//	    conditions:
//	      - {metric: pattern_count, operator: gte, threshold: 3}
//	      - {metric: has_skill, operator: eq, threshold: false}
package learning
