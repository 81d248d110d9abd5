// Package wire implements the coordinator-worker message format: a fixed
// header followed by an opaque, opcode-typed parameter payload.
package wire

import "fmt"

// Tag groups message kinds so a receiver can filter without inspecting the
// opcode.
type Tag uint8

const (
	// Solve carries solve-lifecycle traffic in both directions.
	Solve Tag = iota
	// Response carries the reply to an interrogation RPC.
	Response
	// Config carries configuration side-effects with no reply.
	Config
)

func (t Tag) String() string {
	switch t {
	case Solve:
		return "SOLVE"
	case Response:
		return "RESPONSE"
	case Config:
		return "CONFIG"
	default:
		return fmt.Sprintf("TAG(%d)", uint8(t))
	}
}

// ANY is the wildcard value accepted by Transport.Receive for tag and source
// filters.
const ANY = -1

// Opcode is the 3-byte ASCII operation name carried by every message.
// Names shorter than three bytes are zero-padded on the right.
type Opcode [3]byte

func (o Opcode) String() string {
	n := 3
	for n > 0 && o[n-1] == 0 {
		n--
	}
	return string(o[:n])
}

func op(s string) Opcode {
	var o Opcode
	copy(o[:], s)
	return o
}

// Operational opcodes. OpEndSearch is used both ways: the
// coordinator sends it to request shutdown and the dispatcher echoes the
// same opcode back as its end-search-ack, distinguished by source and
// direction rather than by a dedicated ack opcode.
var (
	OpDeclareIndex     = op("idx") // worker -> coordinator, announces its id on transports that cannot assign one out of band (grpcstream).
	OpLoadInstance     = op("lod")
	OpReset            = op("rst")
	OpSolve            = op("s")
	OpSolveFile        = op("sf")
	OpSolveAssumptions = op("sa")
	OpInterrupt        = op("i")
	OpEndSearch        = op("end")
)

// Terminal opcodes, sent worker -> coordinator on the Solve tag.
var (
	OpSatisfiable   = op("sat")
	OpUnsatisfiable = op("ust")
	OpOptimumFound  = op("opt")
	OpUnknown       = op("unk")
	OpUnsupported   = op("usp")
	OpNewBoundFound = op("bnd")
)

// Configuration opcodes, sent coordinator -> worker on the Config tag, no
// reply expected.
var (
	OpSetTimeout            = op("t")
	OpSetTimeoutMs          = op("tm")
	OpSetVerbosity          = op("v")
	OpSetLogFile            = op("log")
	OpSetLogStream          = op("lgs")
	OpSetLowerBound         = op("low")
	OpSetUpperBound         = op("upp")
	OpSetBounds             = op("lub")
	OpDecisionVariables     = op("dec")
	OpValueHeuristicStatic  = op("vhs")
	OpSetIgnoredConstraints = op("ign")
)

// Interrogation (RPC) opcodes, sent coordinator -> worker on the Solve tag,
// answered on the Response tag.
var (
	OpNVariables            = op("nv")
	OpNConstraints          = op("nc")
	OpIsOptimization        = op("op?")
	OpIsMinimization        = op("min")
	OpGetLowerBound         = op("lb?")
	OpGetUpperBound         = op("ub?")
	OpGetCurrentBound       = op("cur")
	OpSolution              = op("sol")
	OpMapSolution           = op("map")
	OpGetAuxiliaryVariables = op("aux")
	OpCheckSolution         = op("chk")
	OpCheckSolutionAssign   = op("cka")
)

// Header is the fixed-size prologue of every message.
type Header struct {
	Tag            Tag
	Name           Opcode
	Source         int32
	ParameterCount uint16
	PayloadSize    uint32
}

// Message is a fully framed message: header plus its payload bytes. Payload
// must be exactly PayloadSize bytes; readers must not consume beyond it.
type Message struct {
	Header  Header
	Payload []byte
}

func (m Message) String() string {
	return fmt.Sprintf("%s/%s(source=%d, params=%d, bytes=%d)",
		m.Header.Tag, m.Header.Name, m.Header.Source, m.Header.ParameterCount, m.Header.PayloadSize)
}
