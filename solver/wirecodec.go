package solver

import "github.com/gallia/parsolve/internal/wire"

// EncodeCube appends cube's assumptions to enc: the number of assumptions
// followed by, per assumption, variable name, a relation tag (Eq/Neq/Ge/Lt
// as a native int32), and the value. Used by the rpcsolver proxy to frame a
// solve-assumptions request and, through DecodeCube, by the dispatcher to
// read it, so the encoding stays in one place.
func EncodeCube(enc *wire.Encoder, cube Cube) *wire.Encoder {
	enc.PutInt32(int32(len(cube)))
	for _, a := range cube {
		enc.PutString(a.Variable).PutInt32(int32(a.Relation)).PutBigInt(a.Value)
	}
	return enc
}

// DecodeCube is the inverse of EncodeCube.
func DecodeCube(dec *wire.Decoder) (Cube, error) {
	n, err := dec.GetInt32()
	if err != nil {
		return nil, err
	}
	cube := make(Cube, 0, n)
	for i := int32(0); i < n; i++ {
		name, err := dec.GetString()
		if err != nil {
			return nil, err
		}
		relTag, err := dec.GetInt32()
		if err != nil {
			return nil, err
		}
		val, err := dec.GetBigInt()
		if err != nil {
			return nil, err
		}
		cube = append(cube, Assumption{Variable: name, Relation: Relation(relTag), Value: val})
	}
	return cube, nil
}
