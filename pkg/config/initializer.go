package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/expectd/expectd/internal/id"
	"github.com/expectd/expectd/pkg/mock"
)

// LoadExpectations reads an expectation initializer file (YAML or JSON,
// selected by extension) and returns its expectations, tagged as file-sourced
// and given ids where the file declares none.
func LoadExpectations(path string) ([]*mock.Expectation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read initializer: %w", err)
	}

	var exps []*mock.Expectation
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &exps)
	default:
		err = yaml.Unmarshal(data, &exps)
	}
	if err != nil {
		return nil, fmt.Errorf("parse initializer %s: %w", path, err)
	}

	for i, exp := range exps {
		if exp == nil {
			return nil, fmt.Errorf("initializer %s: expectation %d is empty", path, i)
		}
		if exp.ID == "" {
			exp.ID = id.UUID()
		}
		if exp.Times == nil {
			exp.Times = mock.Unlimited()
		}
		if exp.TimeToLive == nil {
			exp.TimeToLive = mock.TTLUnlimited()
		}
		exp.Source = mock.SourceFile
		if err := exp.Validate(); err != nil {
			return nil, fmt.Errorf("initializer %s: %w", path, err)
		}
	}
	return exps, nil
}

// LoadAllExpectations loads every initializer in order. Later files may
// override earlier ids on upsert.
func LoadAllExpectations(paths []string) ([]*mock.Expectation, error) {
	var all []*mock.Expectation
	for _, path := range paths {
		exps, err := LoadExpectations(path)
		if err != nil {
			return nil, err
		}
		all = append(all, exps...)
	}
	return all, nil
}
