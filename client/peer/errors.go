package peer

import "github.com/juju/errors"

var (
	ErrClosed           = errors.New("connection closed")
	ErrNoPeerConnection = errors.New("no peer connection")
)
