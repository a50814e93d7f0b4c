package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"
)

var offFuncs []func()

// Register adds a function that must run before the process exits,
// typically de-energizing the motor relay.
func Register(off func()) {
	offFuncs = append(offFuncs, off)
}

func Shutdown() {
	for _, off := range offFuncs {
		off()
	}
	log.Info().Msg("Actuators released, exiting")
	os.Exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Shutdown()
}
