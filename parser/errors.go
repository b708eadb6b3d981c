package parser

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPacketType  = errors.New("parser: invalid packet type")
	ErrIllegalAttachments = errors.New("parser: illegal attachments")
	ErrInvalidID          = errors.New("parser: invalid packet id")
	ErrInvalidPayload     = errors.New("parser: invalid payload")
	ErrUnexpectedBinary   = errors.New("parser: got binary data when not reconstructing a packet")
	ErrReconstructing     = errors.New("parser: got plaintext data when reconstructing a packet")
	ErrEmptyFrame         = errors.New("parser: empty frame")
)

// DecodeError is returned by a Decoder for a frame it could not accept.
// The decoder is reset and later frames are unaffected.
type DecodeError struct {
	Err   error
	Input string
}

func (e *DecodeError) Error() string {
	if e.Input == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %q", e.Err, e.Input)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(err error, input string) error {
	const maxInput = 64
	if len(input) > maxInput {
		input = input[:maxInput] + "..."
	}
	return &DecodeError{Err: err, Input: input}
}
