package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"inclusion-quiz-service/internal/domain"
)

type definitionsFile struct {
	Quizzes []domain.QuizDefinition `yaml:"quizzes"`
}

// LoadDefinitionsFile reads a YAML file of quiz definitions and validates each
// one. An invalid definition fails the whole load.
func LoadDefinitionsFile(path string) (*StaticQuizLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions is LoadDefinitionsFile without the file read.
func ParseDefinitions(data []byte) (*StaticQuizLoader, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}

	quizzes := make(map[string]domain.QuizDefinition, len(file.Quizzes))
	for _, def := range file.Quizzes {
		if err := domain.ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("quiz %q: %w", def.ID, err)
		}
		if _, dup := quizzes[def.ID]; dup {
			return nil, fmt.Errorf("%w: quiz id %q defined twice", domain.ErrInvalidQuiz, def.ID)
		}
		quizzes[def.ID] = def
	}
	return NewStaticQuizLoader(quizzes), nil
}
