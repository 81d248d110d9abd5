package dispatcher

import "fmt"

var (
	errLogStreamUnsupported    = fmt.Errorf("dispatcher: set-log-stream is not supported over a wire transport")
	errUnreachableConfigOpcode = fmt.Errorf("dispatcher: config opcode routed without a handler")
)
