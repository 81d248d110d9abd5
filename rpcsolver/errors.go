package rpcsolver

import "fmt"

var errNotAnRPC = fmt.Errorf("rpcsolver: result is observed via the coordinator's reader thread, not queried")

func errRemote(msg string) error {
	return fmt.Errorf("rpcsolver: remote solver error: %s", msg)
}
