package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/0xtechdean/ai-team-orchestrator/pkg/models"
)

// ErrSkillExists is returned when a skill with the same name is already stored.
var ErrSkillExists = errors.New("skill already exists")

// CreateSkill stores a new skill keyed by name.
func (db *DB) CreateSkill(ctx context.Context, s *models.Skill) error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("create skill: name is required")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = db.now().UTC()
	}
	triggers, err := json.Marshal(s.Triggers)
	if err != nil {
		return fmt.Errorf("encode triggers: %w", err)
	}

	existing, err := db.GetSkill(ctx, s.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrSkillExists, s.Name)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO skills (name, description, category, triggers, instructions, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.Name, s.Description, s.Category, string(triggers), s.Instructions, s.CreatedBy, FormatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("create skill: %w", err)
	}
	return nil
}

// GetSkill retrieves a skill by name. It returns nil, nil when absent.
func (db *DB) GetSkill(ctx context.Context, name string) (*models.Skill, error) {
	row := db.QueryRowContext(ctx, `
		SELECT name, description, category, triggers, instructions, created_by, created_at
		FROM skills WHERE name = ?
	`, name)
	s, err := scanSkill(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return s, nil
}

// ListSkills lists every skill ordered by name.
func (db *DB) ListSkills(ctx context.Context) ([]*models.Skill, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, description, category, triggers, instructions, created_by, created_at
		FROM skills ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var skills []*models.Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}

func scanSkill(r rowScanner) (*models.Skill, error) {
	var s models.Skill
	var createdAt string
	var category, triggers, instructions, createdBy sql.NullString

	if err := r.Scan(&s.Name, &s.Description, &category, &triggers, &instructions, &createdBy, &createdAt); err != nil {
		return nil, err
	}
	s.Category = category.String
	s.Instructions = instructions.String
	s.CreatedBy = createdBy.String
	if triggers.Valid && triggers.String != "" {
		json.Unmarshal([]byte(triggers.String), &s.Triggers)
	}
	s.CreatedAt, _ = ParseTime(createdAt)
	return &s, nil
}
