package main

import (
	"flag"

	"github.com/danmuck/pddbwire/internal/config"
	"github.com/danmuck/pddbwire/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	output := flag.String("output", "pddbwire.toml", "output path for the client config template")
	validate := flag.Bool("validate", false, "validate an existing config file instead of writing one")
	input := flag.String("input", "pddbwire.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()
	logging.ConfigureRuntime()

	if *validate {
		cfg, err := config.Load(*input)
		if err != nil {
			log.Fatal().Err(err).Msg("configgen validate")
		}
		log.Info().Msgf("validated config path=%q service=%q address=%q", *input, cfg.Service, cfg.Address)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen write")
	}
	log.Info().Msgf("wrote config template path=%q", *output)
}
