package inproc

import "fmt"

var errFinalized = fmt.Errorf("inproc: transport finalized")

func errInvalidID(id int) error {
	return fmt.Errorf("inproc: invalid destination id %d", id)
}
