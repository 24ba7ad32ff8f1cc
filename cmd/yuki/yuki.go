package main

import (
	"errors"
	"os"
	"strings"

	"github.com/crolbar/yuki/half"
	"github.com/crolbar/yuki/internal/config"
	"github.com/crolbar/yuki/internal/configpaths"
	"github.com/crolbar/yuki/internal/log"
	"github.com/crolbar/yuki/matrix"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

const (
	exitError      = 1
	exitInit       = 2
	exitBootloader = 3
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("yuki"),
		kong.Description("Split keyboard control core"),
		kong.UsageOnError(),
		// Load configuration from JSON/YAML/TOML in priority order; flags/env override config values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, raw, closeFiles, err := log.SetupLogger(cli.Log, os.Stdout, os.Stderr)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(exitInit)
	}

	ctx.Bind(logger)
	ctx.Bind(log.RawOutput{W: raw})

	err = ctx.Run()
	for _, c := range closeFiles {
		_ = c.Close()
	}
	if err != nil {
		logger.Error("yuki stopped", "error", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var initErr *half.InitError
	switch {
	case errors.Is(err, matrix.ErrBootloader):
		return exitBootloader
	case errors.As(err, &initErr):
		return exitInit
	}
	return exitError
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("YUKI_CONFIG")
}
