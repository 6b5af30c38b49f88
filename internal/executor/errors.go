package executor

import "errors"

// ErrPoolShutdown is returned by Submit once Shutdown has been called.
var ErrPoolShutdown = errors.New("pool shutdown")
