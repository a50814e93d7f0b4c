package env

import (
	"github.com/thatsimonsguy/sump-controller/internal/config"
)

var Cfg *config.Config
