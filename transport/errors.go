package transport

import "errors"

var (
	// ErrInvalidConfig indicates the dial configuration is incomplete or inconsistent
	ErrInvalidConfig = errors.New("invalid transport config")

	// ErrNoAddress indicates a hostname resolved to no usable address
	ErrNoAddress = errors.New("no address for host")
)
