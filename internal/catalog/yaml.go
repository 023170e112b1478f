package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WriteYAML writes b in the format Load reads from .yaml files.
func WriteYAML(w io.Writer, b Bundle) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(documentOf(b)); err != nil {
		return fmt.Errorf("encode rules yaml: %w", err)
	}
	return enc.Close()
}
