package registry

import (
	"time"

	"sandmon/internal/procfs"
)

// Sandbox is one sandbox root with the usage of its whole subtree as of
// the last refresh. Memory is in bytes.
type Sandbox struct {
	PID        int                `json:"pid"`
	Name       string             `json:"name,omitempty"`
	UID        uint32             `json:"uid"`
	User       string             `json:"user"`
	Cmd        string             `json:"cmd"`
	StartTicks uint64             `json:"start_ticks"`
	Started    time.Time          `json:"started"`
	CPU        procfs.CPUTime     `json:"cpu"`
	CPUPercent float64            `json:"cpu_percent"`
	Resident   uint64             `json:"resident"`
	Shared     uint64             `json:"shared"`
	Net        procfs.NetCounters `json:"net"`
	HasNet     bool               `json:"has_net"`
	RxRate     float64            `json:"rx_rate"`
	TxRate     float64            `json:"tx_rate"`
	Deepest    int                `json:"deepest,omitempty"`
	Members    int                `json:"members"`
	SeenAt     time.Time          `json:"seen_at"`
}

// Member is one process inside a sandbox.
type Member struct {
	PID    int    `json:"pid"`
	Parent int    `json:"parent"`
	Level  uint8  `json:"level"`
	Cmd    string `json:"cmd"`
}

// ListFilter narrows a List query. Empty fields match everything.
type ListFilter struct {
	Names      []string
	UIDs       []uint32
	PIDs       []int
	TextSearch string // substring of Cmd
}
