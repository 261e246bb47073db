package api

import (
	"github.com/rs/zerolog"

	"github.com/tubemux/tubemux/internal/log"
)

// logger returns a component logger for the API surface.
func logger(component string) *zerolog.Logger {
	l := log.WithComponent(component)
	return &l
}
