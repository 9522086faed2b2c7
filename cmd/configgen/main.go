package main

import (
	"fmt"
	"os"

	"github.com/danmuck/scenebridge/internal/config"
	"github.com/danmuck/scenebridge/internal/logging"
	"github.com/spf13/pflag"
)

func defaultPath(kind string) (string, error) {
	switch kind {
	case "bridge":
		return "cmd/bridgectl/config.toml", nil
	case "peer":
		return "cmd/scenepeer/config.toml", nil
	default:
		return "", fmt.Errorf("unknown kind: %s", kind)
	}
}

func main() {
	logging.ConfigureRuntime()
	log := logging.Component("configgen")

	kind := pflag.String("kind", "bridge", "config kind: bridge|peer")
	output := pflag.StringP("output", "o", "", "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.StringP("input", "i", "", "config path for validation (defaults to per-kind cmd path)")
	force := pflag.Bool("force", false, "overwrite existing config file")
	pflag.Parse()

	if *validate {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				log.Fatal().Err(err).Msg("validate")
			}
			path = p
		}
		var err error
		switch *kind {
		case "bridge":
			_, err = config.LoadBridgeConfig(path)
		case "peer":
			_, err = config.LoadPeerConfig(path)
		default:
			err = fmt.Errorf("unknown kind: %s", *kind)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
			os.Exit(1)
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("validated config")
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			log.Fatal().Err(err).Msg("write template")
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
