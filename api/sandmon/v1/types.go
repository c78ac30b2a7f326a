package sandmonv1

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

// Sandbox is the wire form of one sandbox root and its aggregated usage.
// Memory is in bytes, CPU in clock ticks, rates per second. The uint64
// counters travel as decimal strings since struct numbers are float64 and
// lose precision above 2^53.
type Sandbox struct {
	PID        int32
	Name       string
	UID        uint32
	User       string
	Cmd        string
	StartTicks uint64
	// Started is the unix time the root process started, 0 if unknown.
	Started    int64
	CPUUser    uint64
	CPUSystem  uint64
	CPUPercent float64
	Resident   uint64
	Shared     uint64
	RxBytes    uint64
	TxBytes    uint64
	RxRate     float64
	TxRate     float64
	Deepest    int32
	Members    int32
}

// ToStruct encodes s for a Stats or List reply.
func (s Sandbox) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"pid":         s.PID,
		"name":        s.Name,
		"uid":         s.UID,
		"user":        s.User,
		"cmd":         s.Cmd,
		"start_ticks": counter(s.StartTicks),
		"started":     s.Started,
		"cpu_user":    counter(s.CPUUser),
		"cpu_system":  counter(s.CPUSystem),
		"cpu_percent": s.CPUPercent,
		"resident":    counter(s.Resident),
		"shared":      counter(s.Shared),
		"rx_bytes":    counter(s.RxBytes),
		"tx_bytes":    counter(s.TxBytes),
		"rx_rate":     s.RxRate,
		"tx_rate":     s.TxRate,
		"deepest":     s.Deepest,
		"members":     s.Members,
	})
}

// SandboxFromStruct decodes a Sandbox. Missing fields stay zero.
func SandboxFromStruct(st *structpb.Struct) Sandbox {
	f := st.GetFields()
	return Sandbox{
		PID:        int32(f["pid"].GetNumberValue()),
		Name:       f["name"].GetStringValue(),
		UID:        uint32(f["uid"].GetNumberValue()),
		User:       f["user"].GetStringValue(),
		Cmd:        f["cmd"].GetStringValue(),
		StartTicks: counterValue(f["start_ticks"]),
		Started:    int64(f["started"].GetNumberValue()),
		CPUUser:    counterValue(f["cpu_user"]),
		CPUSystem:  counterValue(f["cpu_system"]),
		CPUPercent: f["cpu_percent"].GetNumberValue(),
		Resident:   counterValue(f["resident"]),
		Shared:     counterValue(f["shared"]),
		RxBytes:    counterValue(f["rx_bytes"]),
		TxBytes:    counterValue(f["tx_bytes"]),
		RxRate:     f["rx_rate"].GetNumberValue(),
		TxRate:     f["tx_rate"].GetNumberValue(),
		Deepest:    int32(f["deepest"].GetNumberValue()),
		Members:    int32(f["members"].GetNumberValue()),
	}
}

func counter(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// counterValue decodes a counter sent by counter. Plain numbers are
// accepted too.
func counterValue(v *structpb.Value) uint64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return uint64(n.NumberValue)
	}
	out, err := strconv.ParseUint(v.GetStringValue(), 10, 64)
	if err != nil {
		return 0
	}
	return out
}

// Member is the wire form of one process inside a sandbox.
type Member struct {
	PID    int32
	Parent int32
	Level  uint32
	Cmd    string
}

// ToStruct encodes m for a Tree reply.
func (m Member) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"pid":    m.PID,
		"parent": m.Parent,
		"level":  m.Level,
		"cmd":    m.Cmd,
	})
}

// MemberFromStruct decodes a Member.
func MemberFromStruct(st *structpb.Struct) Member {
	f := st.GetFields()
	return Member{
		PID:    int32(f["pid"].GetNumberValue()),
		Parent: int32(f["parent"].GetNumberValue()),
		Level:  uint32(f["level"].GetNumberValue()),
		Cmd:    f["cmd"].GetStringValue(),
	}
}

// ListOf wraps encoded structs into a ListValue.
func ListOf(items []*structpb.Struct) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(items))}
	for _, it := range items {
		out.Values = append(out.Values, structpb.NewStructValue(it))
	}
	return out
}

// Structs unwraps a ListValue built by ListOf.
func Structs(lv *structpb.ListValue) ([]*structpb.Struct, error) {
	out := make([]*structpb.Struct, 0, len(lv.GetValues()))
	for i, v := range lv.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			return nil, fmt.Errorf("list item %d is not a struct", i)
		}
		out = append(out, st)
	}
	return out, nil
}
