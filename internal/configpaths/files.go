package configpaths

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "yuki"

// Config file base names searched in every directory.
var baseNames = []string{"config", "run", "yuki"}

// DefaultConfigDir returns the platform-specific configuration directory.
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appdata := os.Getenv("AppData"); appdata != "" {
			return filepath.Join(appdata, appName), nil
		}
		return "", errors.New("AppData not set")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, ".config", appName), nil
		}
		return "", errors.New("HOME not set")
	}
}

// DefaultNamedConfigPath returns the config file path in the default
// directory for a base name (e.g. "run") and format.
func DefaultNamedConfigPath(baseName, format string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, baseName+"."+Ext(format)), nil
}

// Ext returns the file extension used for a config format.
func Ext(format string) string {
	switch format {
	case "yaml", "yml":
		return "yaml"
	case "toml":
		return "toml"
	}
	return "json"
}

// EnsureDir ensures the directory for a given file path exists.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// ConfigCandidatePaths builds candidate paths for config files per format,
// highest priority first. userPath, when set, is routed to the loader
// matching its extension.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	addDir := func(dir string) {
		for _, base := range baseNames {
			jsonPaths = append(jsonPaths, filepath.Join(dir, base+".json"))
			yamlPaths = append(yamlPaths, filepath.Join(dir, base+".yaml"), filepath.Join(dir, base+".yml"))
			tomlPaths = append(tomlPaths, filepath.Join(dir, base+".toml"))
		}
	}

	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		case ".toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		addDir(wd)
	}
	if dir, err := DefaultConfigDir(); err == nil {
		addDir(dir)
	}
	if runtime.GOOS != "windows" {
		addDir(filepath.Join("/etc", appName))
	}
	return
}
