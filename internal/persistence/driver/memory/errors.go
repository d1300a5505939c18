package memory

import "errors"

// errFaultInjected is the error returned by fault-injection hooks.
var errFaultInjected = errors.New("<fault injected>")
