package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

// headerSize is the on-wire size of Header: 1 (tag) + 3 (name) + 4 (source)
// + 2 (parameterCount) + 4 (payloadSize) bytes.
const headerSize = 1 + 3 + 4 + 2 + 4

// Encoder accumulates typed parameters into a payload buffer in declared
// order, tracking how many it has written so the final Header can be built
// with EncodeMessage.
type Encoder struct {
	buf   bytes.Buffer
	count uint16
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// PutString appends a NUL-terminated string parameter.
func (e *Encoder) PutString(s string) *Encoder {
	e.buf.WriteString(s)
	e.buf.WriteByte(0)
	e.count++
	return e
}

// PutBigInt appends an arbitrary-precision integer as a NUL-terminated
// decimal string.
func (e *Encoder) PutBigInt(v *big.Int) *Encoder {
	return e.PutString(v.String())
}

// PutBool appends a single-byte boolean (0 or 1).
func (e *Encoder) PutBool(b bool) *Encoder {
	if b {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
	e.count++
	return e
}

// PutInt32 appends a raw, native-endian fixed-width integer.
func (e *Encoder) PutInt32(v int32) *Encoder {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
	e.count++
	return e
}

// PutInt64 appends a raw, native-endian fixed-width integer.
func (e *Encoder) PutInt64(v int64) *Encoder {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
	e.count++
	return e
}

// Absorb appends other's accumulated parameters (and count) after e's own,
// useful for building a reply whose first parameter (e.g. a success flag)
// is computed separately from the rest of the payload.
func (e *Encoder) Absorb(other *Encoder) *Encoder {
	e.buf.Write(other.buf.Bytes())
	e.count += other.count
	return e
}

// Message finalizes the accumulated parameters into a framed Message with
// the given tag, opcode, and source id.
func (e *Encoder) Message(tag Tag, name Opcode, source int32) Message {
	payload := append([]byte(nil), e.buf.Bytes()...)
	return Message{
		Header: Header{
			Tag:            tag,
			Name:           name,
			Source:         source,
			ParameterCount: e.count,
			PayloadSize:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Marshal serializes msg to its on-wire byte representation: header
// immediately followed by payload.
func Marshal(msg Message) []byte {
	out := make([]byte, 0, headerSize+len(msg.Payload))
	out = append(out, byte(msg.Header.Tag))
	out = append(out, msg.Header.Name[:]...)
	var src [4]byte
	binary.NativeEndian.PutUint32(src[:], uint32(msg.Header.Source))
	out = append(out, src[:]...)
	var cnt [2]byte
	binary.NativeEndian.PutUint16(cnt[:], msg.Header.ParameterCount)
	out = append(out, cnt[:]...)
	var sz [4]byte
	binary.NativeEndian.PutUint32(sz[:], msg.Header.PayloadSize)
	out = append(out, sz[:]...)
	out = append(out, msg.Payload...)
	return out
}

// Unmarshal parses raw into a Message, validating that the declared
// payloadSize matches the bytes actually available. It is the caller's
// responsibility to ensure raw contains exactly one framed message (the
// transport is expected to deliver whole frames).
func Unmarshal(raw []byte) (Message, error) {
	if len(raw) < headerSize {
		return Message{}, fmt.Errorf("wire: truncated header: got %d bytes, want at least %d", len(raw), headerSize)
	}
	h := Header{
		Tag:            Tag(raw[0]),
		Source:         int32(binary.NativeEndian.Uint32(raw[4:8])),
		ParameterCount: binary.NativeEndian.Uint16(raw[8:10]),
		PayloadSize:    binary.NativeEndian.Uint32(raw[10:14]),
	}
	copy(h.Name[:], raw[1:4])
	payload := raw[headerSize:]
	if uint32(len(payload)) != h.PayloadSize {
		return Message{}, fmt.Errorf("wire: payload size mismatch: header declares %d, frame carries %d", h.PayloadSize, len(payload))
	}
	return Message{Header: h, Payload: payload}, nil
}

// Decoder reads typed parameters out of a message payload in declared
// order, refusing to read past the payload boundary.
type Decoder struct {
	payload []byte
	pos     int
}

// NewDecoder returns a Decoder over msg's payload.
func NewDecoder(msg Message) *Decoder {
	return &Decoder{payload: msg.Payload}
}

func (d *Decoder) remaining() []byte {
	return d.payload[d.pos:]
}

// GetString reads a NUL-terminated string parameter.
func (d *Decoder) GetString() (string, error) {
	rest := d.remaining()
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", fmt.Errorf("wire: unterminated string parameter at offset %d", d.pos)
	}
	d.pos += i + 1
	return string(rest[:i]), nil
}

// GetBigInt reads an arbitrary-precision integer parameter.
func (d *Decoder) GetBigInt() (*big.Int, error) {
	s, err := d.GetString()
	if err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("wire: malformed decimal integer parameter %q", s)
	}
	return v, nil
}

// GetBool reads a single-byte boolean parameter.
func (d *Decoder) GetBool() (bool, error) {
	rest := d.remaining()
	if len(rest) < 1 {
		return false, fmt.Errorf("wire: truncated bool parameter at offset %d", d.pos)
	}
	d.pos++
	return rest[0] != 0, nil
}

// GetInt32 reads a raw, native-endian fixed-width integer parameter.
func (d *Decoder) GetInt32() (int32, error) {
	rest := d.remaining()
	if len(rest) < 4 {
		return 0, fmt.Errorf("wire: truncated int32 parameter at offset %d", d.pos)
	}
	v := int32(binary.NativeEndian.Uint32(rest[:4]))
	d.pos += 4
	return v, nil
}

// GetInt64 reads a raw, native-endian fixed-width integer parameter.
func (d *Decoder) GetInt64() (int64, error) {
	rest := d.remaining()
	if len(rest) < 8 {
		return 0, fmt.Errorf("wire: truncated int64 parameter at offset %d", d.pos)
	}
	v := int64(binary.NativeEndian.Uint64(rest[:8]))
	d.pos += 8
	return v, nil
}

// Done reports whether every byte of the payload has been consumed; callers
// should check this after reading an opcode's declared parameters to catch
// a mismatched parameter count.
func (d *Decoder) Done() bool {
	return d.pos == len(d.payload)
}
