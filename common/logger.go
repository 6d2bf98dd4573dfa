package common

import (
	"sparkalyze/status"
)

// MT: Constant after initialization; thread-safe
var Log status.Logger = status.Default()
