package grpcstream

import "fmt"

var errFinalized = fmt.Errorf("grpcstream: transport finalized")

func errInvalidID(id int) error {
	return fmt.Errorf("grpcstream: invalid destination id %d", id)
}
