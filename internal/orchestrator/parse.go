package orchestrator

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// Tools that permit an agent to emit structured requests.
const (
	ToolCreateAgent = "create_agent"
	ToolCreateSkill = "create_skill"
)

// Structured request delimiters in backend output.
const (
	agentRequestStart = "---NEW_AGENT_REQUEST---"
	skillRequestStart = "---NEW_SKILL_REQUEST---"
	requestEnd        = "---END_REQUEST---"
)

// MaxLearnings is how many learnings one task contributes.
const MaxLearnings = 3

// RequestKind distinguishes structured request blocks.
type RequestKind string

const (
	RequestAgent RequestKind = "agent"
	RequestSkill RequestKind = "skill"
)

// Request is one parsed structured request block.
type Request struct {
	Kind   RequestKind
	Fields map[string]string
}

var keyLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_ ]*):\s*(.*)$`)

// ParseRequests extracts the request blocks from output. Blocks that are
// never terminated or have no fields are reported as errors and skipped.
func ParseRequests(output string) ([]Request, []error) {
	var (
		reqs    []Request
		errs    []error
		current *Request
		lastKey string
	)

	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch trimmed {
		case agentRequestStart, skillRequestStart:
			if current != nil {
				errs = append(errs, fmt.Errorf("%s request not terminated before next block", current.Kind))
			}
			kind := RequestAgent
			if trimmed == skillRequestStart {
				kind = RequestSkill
			}
			current = &Request{Kind: kind, Fields: make(map[string]string)}
			lastKey = ""
			continue
		case requestEnd:
			if current == nil {
				continue
			}
			if len(current.Fields) == 0 {
				errs = append(errs, fmt.Errorf("empty %s request", current.Kind))
			} else {
				reqs = append(reqs, *current)
			}
			current = nil
			continue
		}

		if current == nil || trimmed == "" {
			continue
		}
		if m := keyLine.FindStringSubmatch(trimmed); m != nil {
			lastKey = normalizeKey(m[1])
			current.Fields[lastKey] = strings.TrimSpace(m[2])
			continue
		}
		// Continuation lines extend the previous value.
		if lastKey != "" {
			current.Fields[lastKey] = strings.TrimSpace(current.Fields[lastKey] + "\n" + trimmed)
		}
	}
	if current != nil {
		errs = append(errs, fmt.Errorf("%s request missing %s", current.Kind, requestEnd))
	}
	return reqs, errs
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), " ", "_")
}

// splitList splits a comma separated field, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// AgentFromRequest builds a worker identity from an agent request.
func AgentFromRequest(r Request) (*models.Agent, error) {
	name := r.Fields["name"]
	if name == "" {
		return nil, fmt.Errorf("agent request: name is required")
	}
	id := r.Fields["id"]
	if id == "" {
		id = slugify(name)
	}
	if id == "" {
		return nil, fmt.Errorf("agent request: cannot derive id from %q", name)
	}
	role := models.Role(strings.ToLower(r.Fields["role"]))
	if role == "" {
		role = models.RoleSpecialist
	}
	if !role.Valid() {
		return nil, fmt.Errorf("agent request %s: invalid role %q", id, role)
	}
	return &models.Agent{
		ID:           id,
		Name:         name,
		Role:         role,
		Description:  r.Fields["description"],
		Capabilities: splitList(r.Fields["capabilities"]),
		Tools:        splitList(r.Fields["tools"]),
		Instructions: r.Fields["instructions"],
	}, nil
}

// SkillFromRequest builds a skill from a skill request.
func SkillFromRequest(r Request, createdBy string) (*models.Skill, error) {
	name := r.Fields["name"]
	if name == "" {
		return nil, fmt.Errorf("skill request: name is required")
	}
	triggers := r.Fields["triggers"]
	if triggers == "" {
		triggers = r.Fields["trigger"]
	}
	return &models.Skill{
		Name:         slugify(name),
		Description:  r.Fields["description"],
		Category:     r.Fields["category"],
		Triggers:     splitList(triggers),
		Instructions: r.Fields["instructions"],
		CreatedBy:    createdBy,
	}, nil
}

// ExtractLearnings returns up to MaxLearnings list items from the
// "## Learnings" section of markdown output.
func ExtractLearnings(output string) []string {
	src := []byte(output)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var learnings []string
	inSection := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			if inSection && h.Level <= 2 {
				break
			}
			if h.Level == 2 && strings.EqualFold(nodeText(h, src), "learnings") {
				inSection = true
			}
			continue
		}
		if !inSection {
			continue
		}
		list, ok := n.(*ast.List)
		if !ok {
			continue
		}
		for item := list.FirstChild(); item != nil; item = item.NextSibling() {
			if item.FirstChild() == nil {
				continue
			}
			if t := nodeText(item.FirstChild(), src); t != "" {
				learnings = append(learnings, t)
				if len(learnings) == MaxLearnings {
					return learnings
				}
			}
		}
	}
	return learnings
}

// nodeText concatenates the text segments below n.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
