package models

import "time"

// Skill is a reusable instruction set created when a task pattern recurs.
type Skill struct {
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description" yaml:"description"`
	Category     string    `json:"category,omitempty" yaml:"category,omitempty"`
	Triggers     []string  `json:"triggers,omitempty" yaml:"trigger,omitempty"`
	Instructions string    `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}
