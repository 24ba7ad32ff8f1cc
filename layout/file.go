package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk keymap format.
//
//	hold_timeout: 200
//	layers:
//	  - name: dvorak
//	    keys:
//	      - [Grave, Apostrophe, Comma, ...]
type File struct {
	HoldTimeout int         `yaml:"hold_timeout,omitempty" toml:"hold_timeout,omitempty" json:"hold_timeout,omitempty"`
	Layers      []LayerFile `yaml:"layers" toml:"layers" json:"layers"`
}

// LayerFile is one named layer of keymap entries, see ParseAction.
type LayerFile struct {
	Name string     `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
	Keys [][]string `yaml:"keys" toml:"keys" json:"keys"`
}

// Build parses every entry and returns the layers and layer names.
func (f *File) Build() (Layers, []string, error) {
	layers := make(Layers, len(f.Layers))
	names := make([]string, len(f.Layers))
	for i, lf := range f.Layers {
		names[i] = lf.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("layer %d", i)
		}
		layers[i] = make([][]Action, len(lf.Keys))
		for r, row := range lf.Keys {
			layers[i][r] = make([]Action, len(row))
			for c, s := range row {
				a, err := ParseAction(s)
				if err != nil {
					return nil, nil, fmt.Errorf("%s (%d,%d): %w", names[i], r, c, err)
				}
				layers[i][r][c] = a
			}
		}
	}
	if err := layers.Validate(); err != nil {
		return nil, nil, err
	}
	return layers, names, nil
}

// Encode renders layers back into the file format.
func Encode(layers Layers, names []string, holdTimeout int) File {
	f := File{HoldTimeout: holdTimeout, Layers: make([]LayerFile, len(layers))}
	for i, l := range layers {
		lf := LayerFile{Keys: make([][]string, len(l))}
		if i < len(names) {
			lf.Name = names[i]
		}
		for r, row := range l {
			lf.Keys[r] = make([]string, len(row))
			for c, a := range row {
				lf.Keys[r][c] = a.String()
			}
		}
		f.Layers[i] = lf
	}
	return f
}

// Unmarshal decodes a keymap in the given format ("yaml" or "toml").
func Unmarshal(data []byte, format string) (*File, error) {
	var f File
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode yaml keymap: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode toml keymap: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported keymap format %q", format)
	}
	return &f, nil
}

// Load reads a keymap file, picking the format from its extension, and
// builds a Keymap engine from it.
func Load(path string) (*Keymap, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read keymap: %w", err)
	}
	f, err := Unmarshal(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return nil, nil, err
	}
	layers, names, err := f.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("keymap %s: %w", path, err)
	}
	km, err := NewKeymap(layers, f.HoldTimeout)
	if err != nil {
		return nil, nil, err
	}
	return km, names, nil
}
