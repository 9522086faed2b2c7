package protocol

import (
	"bytes"
	"fmt"
)

// State is one step of the alternating request/reply conversation.
type State uint8

const (
	StateUndefined State = iota
	StateIdle
	StateClear
	StateUpdate
	StateGetNode
	StateSendNode
	StateGetMesh
	StateSendMesh
	StateGetCamera
	StateSendCamera
	StateGetLight
	StateSendLight
	StateSendTexture
	StateSendMaterial
)

const (
	readSigil  = '*'
	writeSigil = '@'
)

var tokens = [...]string{
	StateUndefined:    "*UDEF*",
	StateIdle:         "*IDLE*",
	StateClear:        "*CLEAR*",
	StateUpdate:       "*UPDATE*",
	StateGetNode:      "*NODE*",
	StateSendNode:     "@NODE@",
	StateGetMesh:      "*MESH*",
	StateSendMesh:     "@MESH@",
	StateGetCamera:    "*CAMERA*",
	StateSendCamera:   "@CAMERA@",
	StateGetLight:     "*LIGHT*",
	StateSendLight:    "@LIGHT@",
	StateSendTexture:  "@TEXTURE@",
	StateSendMaterial: "@MATERIAL@",
}

var names = [...]string{
	StateUndefined:    "undefined",
	StateIdle:         "idle",
	StateClear:        "clear",
	StateUpdate:       "update",
	StateGetNode:      "get_node",
	StateSendNode:     "send_node",
	StateGetMesh:      "get_mesh",
	StateSendMesh:     "send_mesh",
	StateGetCamera:    "get_camera",
	StateSendCamera:   "send_camera",
	StateGetLight:     "get_light",
	StateSendLight:    "send_light",
	StateSendTexture:  "send_texture",
	StateSendMaterial: "send_material",
}

// classifyOrder lists every recognised state in match order.
var classifyOrder = []State{
	StateIdle, StateClear, StateUpdate,
	StateGetNode, StateSendNode,
	StateGetMesh, StateSendMesh,
	StateGetCamera, StateSendCamera,
	StateGetLight, StateSendLight,
	StateSendTexture, StateSendMaterial,
	StateUndefined,
}

// States returns every defined state except Undefined.
func States() []State {
	out := make([]State, 0, len(classifyOrder)-1)
	for _, s := range classifyOrder {
		if s != StateUndefined {
			out = append(out, s)
		}
	}
	return out
}

func (s State) valid() bool {
	return int(s) < len(tokens)
}

// Token returns the fixed wire instruction for s.
func (s State) Token() string {
	if !s.valid() {
		return tokens[StateUndefined]
	}
	return tokens[s]
}

func (s State) String() string {
	if !s.valid() {
		return fmt.Sprintf("state(%d)", uint8(s))
	}
	return names[s]
}

// IsWrite reports whether s carries a data payload.
func (s State) IsWrite() bool {
	return s.Token()[0] == writeSigil
}

// IsRead reports whether s is a request or control state.
func (s State) IsRead() bool {
	return s.Token()[0] == readSigil
}

// AllowsPayload reports whether a payload frame may follow s. Clear is the
// one read state that may carry session config.
func (s State) AllowsPayload() bool {
	return s.IsWrite() || s == StateClear
}

// Classify maps an inbound header to a state by case-sensitive prefix match.
// Trailing bytes such as a NUL terminator are ignored. Unknown headers return
// StateUndefined.
func Classify(header []byte) State {
	for _, s := range classifyOrder {
		if bytes.HasPrefix(header, []byte(tokens[s])) {
			return s
		}
	}
	return StateUndefined
}

// ClassifyString is Classify for string headers.
func ClassifyString(header string) State {
	return Classify([]byte(header))
}

// Effective folds Undefined into Idle.
func (s State) Effective() State {
	if s == StateUndefined || !s.valid() {
		return StateIdle
	}
	return s
}
