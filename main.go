package main

import (
	"context"
	"os"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/cli"
	"github.com/peer-calls/meetings/client/logformatter"
	"github.com/peer-calls/meetings/client/logger"
	"github.com/peer-calls/meetings/client/multierr"
	"github.com/spf13/pflag"
)

const gitDescribe string = "v0.0.0"

func start(ctx context.Context, log logger.Logger, args []string) error {
	err := cli.Exec(ctx, cli.Props{
		Log:     log,
		Version: gitDescribe,
		Args:    args,
	})

	return errors.Trace(err)
}

func main() {
	log := logger.New().
		WithConfig(
			logger.NewConfig(logger.ConfigMap{
				"**:pion:**":        logger.LevelWarn,
				"**:silence_track":  logger.LevelWarn,
				"**:meetingsapi:**": logger.LevelInfo,
				"":                  logger.LevelInfo,
			}),
		).
		WithConfig(logger.NewConfigFromString(os.Getenv("MEETINGS_LOG"))).
		WithFormatter(logformatter.New()).
		WithNamespaceAppended("main")

	err := start(context.Background(), log, os.Args[1:])

	if multierr.Is(err, pflag.ErrHelp) {
		os.Exit(1)
	} else if err != nil {
		log.Error("Command error", errors.Trace(err), nil)
		os.Exit(1)
	}
}
