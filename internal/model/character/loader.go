package character

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyRoster is returned when a roster file holds no characters.
var ErrEmptyRoster = errors.New("character roster is empty")

type rosterFile struct {
	Characters []Character `yaml:"characters"`
}

// LoadFile reads a YAML roster from path. An empty path returns Seed().
func LoadFile(path string) ([]Character, error) {
	if strings.TrimSpace(path) == "" {
		return Seed(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	items, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return items, nil
}

// Decode parses and validates a YAML roster. Unknown keys are rejected.
func Decode(r io.Reader) ([]Character, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file rosterFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyRoster
		}
		return nil, fmt.Errorf("decode roster: %w", err)
	}

	if err := Validate(file.Characters); err != nil {
		return nil, err
	}
	return file.Characters, nil
}

// Validate checks ids are present and unique and every character has a prompt.
func Validate(items []Character) error {
	if len(items) == 0 {
		return ErrEmptyRoster
	}

	seen := make(map[string]struct{}, len(items))
	var errs []error
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("characters[%d]: id is required", i))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("characters[%d]: duplicate id %q", i, id))
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(item.SystemPrompt) == "" {
			errs = append(errs, fmt.Errorf("characters[%d] %q: system_prompt is required", i, id))
		}
	}
	return errors.Join(errs...)
}
