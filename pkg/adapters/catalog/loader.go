// Package catalog loads survey questions from JSON or YAML files.
//
// Both formats accept either a bare list of question texts or an object with a
// "questions" list:
//
//	["How old are you?", "Where do you live?"]
//
//	questions:
//	  - How old are you?
//	  - Where do you live?
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/ports"
	"gopkg.in/yaml.v3"
)

// File implements ports.QuestionSource over a question file.
type File struct {
	Path string
}

// NewFile returns a question source reading path.
func NewFile(path string) *File {
	return &File{Path: path}
}

type document struct {
	Questions []string `yaml:"questions" json:"questions"`
}

// LoadQuestions reads and parses the file. The format is chosen by extension;
// anything other than .json is parsed as YAML.
func (f *File) LoadQuestions(ctx context.Context) ([]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file: %w", err)
	}

	if strings.ToLower(filepath.Ext(f.Path)) == ".json" {
		questions, err := parseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(f.Path), err)
		}
		return questions, nil
	}

	questions, err := parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(f.Path), err)
	}
	return questions, nil
}

func parseJSON(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var questions []string
		if err := json.Unmarshal(trimmed, &questions); err != nil {
			return nil, err
		}
		return questions, nil
	}

	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return doc.Questions, nil
}

func parseYAML(data []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	// Empty file.
	if len(root.Content) == 0 {
		return nil, nil
	}

	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		var questions []string
		if err := node.Decode(&questions); err != nil {
			return nil, err
		}
		return questions, nil
	case yaml.MappingNode:
		var doc document
		if err := node.Decode(&doc); err != nil {
			return nil, err
		}
		return doc.Questions, nil
	default:
		return nil, fmt.Errorf("line %d: expected a list of questions", node.Line)
	}
}

// Load builds a catalog from a question source.
func Load(ctx context.Context, src ports.QuestionSource) (*domain.Catalog, error) {
	texts, err := src.LoadQuestions(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewCatalog(texts)
}

// LoadFile builds a catalog from the question file at path.
func LoadFile(ctx context.Context, path string) (*domain.Catalog, error) {
	return Load(ctx, NewFile(path))
}
