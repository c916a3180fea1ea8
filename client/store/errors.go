package store

import "github.com/juju/errors"

var (
	ErrAlreadyConnected = errors.New("meeting already connected")
	ErrNotConnected     = errors.New("meeting not connected")
	ErrUnknownUser      = errors.New("unknown participant")
	ErrUnknownTile      = errors.New("unknown tile")
)
