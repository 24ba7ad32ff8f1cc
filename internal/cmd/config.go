package cmd

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/crolbar/yuki/internal/configpaths"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

// ConfigCommand groups config-related subcommands.
type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Generate a configuration template"`
}

// ConfigInit scaffolds a configuration file for a command.
type ConfigInit struct {
	Command string `arg:"" name:"command" help:"Command to generate config for" enum:"run" default:"run"`
	Format  string `help:"Output format" enum:"json,yaml,toml" default:"json"`
	Output  string `help:"Destination file path (defaults to <command>.<ext> in the current directory)"`
	User    bool   `help:"Write to the user config directory instead"`
	Force   bool   `help:"Overwrite if the file already exists"`
}

// Run generates a configuration template by reflecting over the command
// struct and its kong tags.
func (c *ConfigInit) Run() error {
	root, err := Template(c.Command)
	if err != nil {
		return err
	}

	dest := c.Output
	switch {
	case dest != "":
	case c.User:
		if dest, err = configpaths.DefaultNamedConfigPath(c.Command, c.Format); err != nil {
			return err
		}
	default:
		dest = c.Command + "." + configpaths.Ext(c.Format)
	}

	if !c.Force {
		if _, err := os.Stat(dest); err == nil {
			return errors.New("destination exists; use --force to overwrite")
		}
	}
	if err := configpaths.EnsureDir(dest); err != nil {
		return err
	}

	data, err := Marshal(root, c.Format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Println(dest)
	return nil
}

// Template returns the default configuration of a command as nested maps
// keyed the way kong's configuration loaders look flags up.
func Template(command string) (map[string]any, error) {
	switch command {
	case "run":
		return buildMapFromStruct(reflect.TypeOf(Run{})), nil
	}
	return nil, fmt.Errorf("unknown command %q; expected 'run'", command)
}

// Marshal encodes a template as json, yaml or toml.
func Marshal(root map[string]any, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		return json.MarshalIndent(root, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(root)
	case "toml":
		return toml.Marshal(root)
	}
	return nil, fmt.Errorf("unsupported format: %s", format)
}

// configKey turns a Go field name into kong's flag name with underscores,
// e.g. RetryDelay -> retry_delay, BusID -> bus_id.
func configKey(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if unicode.IsUpper(c) && i > 0 {
			prev := r[i-1]
			nextLower := i+1 < len(r) && unicode.IsLower(r[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(c))
	}
	return b.String()
}

var textUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()

func buildMapFromStruct(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := map[string]any{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("kong") == "-" {
			continue
		}
		if _, ok := f.Tag.Lookup("cmd"); ok {
			continue
		}

		if _, ok := f.Tag.Lookup("embed"); ok {
			name := strings.TrimSuffix(f.Tag.Get("prefix"), ".")
			sub := buildMapFromStruct(f.Type)
			if name != "" {
				out[name] = sub
			} else {
				for k, v := range sub {
					out[k] = v
				}
			}
			continue
		}

		key := configKey(f.Name)
		if n := f.Tag.Get("name"); n != "" {
			key = strings.ReplaceAll(n, "-", "_")
		}
		if val := defaultValueForField(f.Type, f.Tag.Get("default")); val != nil {
			out[key] = val
		}
	}
	return out
}

func defaultValueForField(t reflect.Type, def string) any {
	if reflect.PointerTo(t).Implements(textUnmarshaler) {
		return def
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "time" && t.Name() == "Duration" {
		if def != "" {
			return def
		}
		return "0s"
	}
	switch t.Kind() {
	case reflect.String:
		return def
	case reflect.Bool:
		b, _ := strconv.ParseBool(def)
		return b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(def, 10, 64)
		return n
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, _ := strconv.ParseUint(def, 10, 64)
		return n
	case reflect.Float32, reflect.Float64:
		f, _ := strconv.ParseFloat(def, 64)
		return f
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			return nil
		}
		if def == "" {
			return []string{}
		}
		return strings.Split(def, ",")
	case reflect.Struct:
		return buildMapFromStruct(t)
	default:
		return nil
	}
}
