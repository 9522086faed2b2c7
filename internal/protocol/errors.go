package protocol

import "errors"

var (
	ErrEmptyInstruction  = errors.New("protocol: empty instruction")
	ErrBrokenMultipart   = errors.New("protocol: continuation frame does not match message")
	ErrUnexpectedPayload = errors.New("protocol: read state carries payload")
	ErrMissingPayload    = errors.New("protocol: write state without payload")
)
