package cli

import (
	"context"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/peer-calls/meetings/client/logger"
)

type Props struct {
	Log     logger.Logger
	Version string
	Args    []string
	// Stdout receives the command output. Defaults to os.Stdout.
	Stdout io.Writer
}

func (p Props) stdout() io.Writer {
	if p.Stdout == nil {
		return os.Stdout
	}

	return p.Stdout
}

func Exec(ctx context.Context, props Props) error {
	cmd := NewRootCommand(props)
	err := cmd.Exec(ctx, props.Args)

	return errors.Trace(err)
}
