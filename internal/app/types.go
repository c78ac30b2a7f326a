package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sandmonv1 "sandmon/api/sandmon/v1"
)

// Sandbox mirrors the daemon's per-sandbox usage record. Memory is in
// bytes, CPU in clock ticks and rates per second.
type Sandbox struct {
	PID        int
	Name       string
	UID        uint32
	User       string
	Cmd        string
	StartTicks uint64
	Started    time.Time
	CPUUser    uint64
	CPUSystem  uint64
	CPUPercent float64
	Resident   uint64
	Shared     uint64
	RxBytes    uint64
	TxBytes    uint64
	RxRate     float64
	TxRate     float64
	Deepest    int
	Members    int
}

func sandboxFromWire(w sandmonv1.Sandbox) Sandbox {
	return Sandbox{
		PID:        int(w.PID),
		Name:       w.Name,
		UID:        w.UID,
		User:       w.User,
		Cmd:        w.Cmd,
		StartTicks: w.StartTicks,
		Started:    fromUnix(w.Started),
		CPUUser:    w.CPUUser,
		CPUSystem:  w.CPUSystem,
		CPUPercent: w.CPUPercent,
		Resident:   w.Resident,
		Shared:     w.Shared,
		RxBytes:    w.RxBytes,
		TxBytes:    w.TxBytes,
		RxRate:     w.RxRate,
		TxRate:     w.TxRate,
		Deepest:    int(w.Deepest),
		Members:    int(w.Members),
	}
}

func fromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// Member is one process of a sandbox tree.
type Member struct {
	PID    int
	Parent int
	Level  int
	Cmd    string
}

func memberFromWire(w sandmonv1.Member) Member {
	return Member{PID: int(w.PID), Parent: int(w.Parent), Level: int(w.Level), Cmd: w.Cmd}
}

// ListFilters narrows the sandbox listing. Empty selectors match all.
type ListFilters struct {
	Names      []string
	Users      []string
	PIDs       []int
	TextSearch string
}

func (f ListFilters) normalize() (ListFilters, error) {
	out := ListFilters{TextSearch: strings.TrimSpace(f.TextSearch)}
	for _, name := range f.Names {
		clean := strings.TrimSpace(name)
		if clean == "" {
			return out, errors.New("name filters must not be empty")
		}
		out.Names = append(out.Names, clean)
	}
	for _, user := range f.Users {
		clean := strings.TrimSpace(user)
		if clean == "" {
			return out, errors.New("user filters must not be empty")
		}
		out.Users = append(out.Users, clean)
	}
	for _, pid := range f.PIDs {
		if pid <= 0 {
			return out, fmt.Errorf("invalid pid filter: %d", pid)
		}
		out.PIDs = append(out.PIDs, pid)
	}
	return out, nil
}

func (f ListFilters) match(sb Sandbox) bool {
	if len(f.Names) > 0 && !contains(f.Names, sb.Name) {
		return false
	}
	if len(f.Users) > 0 && !contains(f.Users, sb.User) && !contains(f.Users, fmt.Sprint(sb.UID)) {
		return false
	}
	if len(f.PIDs) > 0 {
		found := false
		for _, pid := range f.PIDs {
			if pid == sb.PID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.TextSearch != "" && !strings.Contains(sb.Cmd, f.TextSearch) {
		return false
	}
	return true
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
