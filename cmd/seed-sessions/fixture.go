package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Fixture is the YAML layout of seed/sessions.yaml.
type Fixture struct {
	Sessions   []SessionFixture   `yaml:"sessions"`
	Evaluation *EvaluationFixture `yaml:"evaluation"`
}

type SessionFixture struct {
	ID                int            `yaml:"id"`
	Name              string         `yaml:"name"`
	Description       string         `yaml:"description"`
	DurationMinutes   int            `yaml:"duration_minutes"`
	EvaluationMinutes int            `yaml:"evaluation_minutes"`
	Popups            []PopupFixture `yaml:"popups"`
	QuestionSets      []SetFixture   `yaml:"question_sets"`
}

type PopupFixture struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	StartTime   int    `yaml:"start_time"`
	Duration    int    `yaml:"duration"`
}

type SetFixture struct {
	SetName   string            `yaml:"set_name"`
	Image     string            `yaml:"image"`
	Questions []QuestionFixture `yaml:"questions"`
}

type QuestionFixture struct {
	Question      string   `yaml:"question"`
	Choices       []string `yaml:"choices"`
	CorrectAnswer string   `yaml:"correct_answer"`
}

type EvaluationFixture struct {
	Description string            `yaml:"description"`
	Variables   []VariableFixture `yaml:"variables"`
}

type VariableFixture struct {
	Name    string   `yaml:"name"`
	Answers []string `yaml:"answers"`
}

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a fixture and checks it. Unknown keys are rejected
// so a typo does not silently drop data.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	var errs []error
	seen := map[int]bool{}
	for i, s := range f.Sessions {
		where := fmt.Sprintf("sessions[%d]", i)
		if s.ID <= 0 {
			errs = append(errs, fmt.Errorf("%s: id must be positive", where))
		} else if seen[s.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id %d", where, s.ID))
		}
		seen[s.ID] = true
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		}
		if s.DurationMinutes <= 0 {
			errs = append(errs, fmt.Errorf("%s: duration_minutes must be positive", where))
		}
		if s.EvaluationMinutes < 0 {
			errs = append(errs, fmt.Errorf("%s: evaluation_minutes must not be negative", where))
		}
		for j, p := range s.Popups {
			if p.Name == "" || p.Description == "" {
				errs = append(errs, fmt.Errorf("%s.popups[%d]: name and description are required", where, j))
			}
			if p.StartTime < 0 || p.Duration <= 0 {
				errs = append(errs, fmt.Errorf("%s.popups[%d]: start_time must be >= 0 and duration > 0", where, j))
			}
		}
		for j, set := range s.QuestionSets {
			if set.SetName == "" {
				errs = append(errs, fmt.Errorf("%s.question_sets[%d]: set_name is required", where, j))
			}
			for k, q := range set.Questions {
				if len(q.Choices) < 2 {
					errs = append(errs, fmt.Errorf("%s.question_sets[%d].questions[%d]: needs at least two choices", where, j, k))
				}
				if !slices.Contains(q.Choices, q.CorrectAnswer) {
					errs = append(errs, fmt.Errorf("%s.question_sets[%d].questions[%d]: correct_answer %q is not a choice", where, j, k, q.CorrectAnswer))
				}
			}
		}
	}
	if e := f.Evaluation; e != nil {
		if e.Description == "" {
			errs = append(errs, errors.New("evaluation: description is required"))
		}
		for i, v := range e.Variables {
			if v.Name == "" || len(v.Answers) == 0 {
				errs = append(errs, fmt.Errorf("evaluation.variables[%d]: name and answers are required", i))
			}
		}
	}
	return errors.Join(errs...)
}
