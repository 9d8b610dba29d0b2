package protocol

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes every protocol in r. A document may hold a single protocol
// mapping or a sequence of them, and a stream may hold several documents.
// JSON input is accepted since it is valid YAML.
func Parse(r io.Reader) ([]*Protocol, error) {
	dec := yaml.NewDecoder(r)
	var out []*Protocol
	for doc := 0; ; doc++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		if len(node.Content) == 0 {
			continue
		}
		root := node.Content[0]
		if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
			continue
		}
		switch root.Kind {
		case yaml.SequenceNode:
			var list []*Protocol
			if err := root.Decode(&list); err != nil {
				return nil, fmt.Errorf("document %d: %w", doc, err)
			}
			out = append(out, list...)
		case yaml.MappingNode:
			p := new(Protocol)
			if err := root.Decode(p); err != nil {
				return nil, fmt.Errorf("document %d: %w", doc, err)
			}
			out = append(out, p)
		default:
			return nil, fmt.Errorf("document %d: expected a protocol or a list of protocols", doc)
		}
	}
	for _, p := range out {
		normalize(p)
	}
	return out, nil
}

// Load reads and validates the protocols in one file.
func Load(path string) ([]*Protocol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open protocol file: %w", err)
	}
	defer f.Close()

	protocols, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, p := range protocols {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return protocols, nil
}

// LoadDir loads every .yaml, .yml and .json file below dir, in lexical
// path order.
func LoadDir(dir string) ([]*Protocol, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml", ".json":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)

	var out []*Protocol
	for _, path := range files {
		protocols, err := Load(path)
		if err != nil {
			return nil, err
		}
		out = append(out, protocols...)
	}
	return out, nil
}

// LoadPaths loads a mix of files and directories.
func LoadPaths(paths []string) ([]*Protocol, error) {
	var out []*Protocol
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("protocol path: %w", err)
		}
		var protocols []*Protocol
		if info.IsDir() {
			protocols, err = LoadDir(path)
		} else {
			protocols, err = Load(path)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, protocols...)
	}
	return out, nil
}

// normalize fills defaults that depend on other fields.
func normalize(p *Protocol) {
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.ID == "" {
			s.ID = s.Name
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("stage-%d", i)
		}
	}
}
