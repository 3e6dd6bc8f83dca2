package workflow

import (
	"io"
	"os"
)

// Load reads and validates a workflow from a YAML file.
//
// Load combines file reading with validation - it returns an error if the
// file cannot be read or if the workflow content is invalid.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Validate(data)
}

// LoadReader validates a workflow from an io.Reader.
//
// LoadReader is useful for reading workflows from stdin or other
// streaming sources.
func LoadReader(r io.Reader) (*Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Validate(data)
}
