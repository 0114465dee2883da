package store

import (
	"errors"

	"github.com/hyperengineering/fitsync/internal/validation"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = validation.ErrInvalid
	ErrEmptyPatch   = errors.New("patch sets no fields")
	ErrUnknownKind  = errors.New("unknown entity kind")
	ErrMalformedRow = errors.New("malformed remote row")
	ErrNotPermitted = errors.New("not permitted")
	ErrInviteClosed = errors.New("invite no longer open")
)
