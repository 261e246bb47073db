package mux

import "errors"

var (
	// ErrUnsupportedTrack indicates the chosen container kind cannot carry
	// one of the supplied codecs.
	ErrUnsupportedTrack = errors.New("mux: unsupported track configuration")
	// ErrFinalize indicates the output could not be finalized, either
	// because a track never received a sample or a prior write failed.
	ErrFinalize = errors.New("mux: finalize failed")
	// ErrWrite indicates a sink write failed.
	ErrWrite = errors.New("mux: write failed")
)
