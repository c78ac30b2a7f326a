package procfs

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

const (
	keyName  = "Name:"
	keyState = "State:"
	keyPPid  = "PPid:"
	keyUID   = "Uid:"
)

// Status is the subset of the status record the tree builder needs. Keys are
// collected in any order; a missing key leaves its Has flag false.
type Status struct {
	Name    string
	Zombie  bool
	PPid    int
	HasPPid bool
	UID     uint32
	HasUID  bool
}

// Status parses the status record of pid.
func (r *Reader) Status(pid int) (Status, bool) {
	f, err := os.Open(r.path(pid, "status"))
	if err != nil {
		return Status{}, false
	}
	defer f.Close()

	var st Status
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, keyName):
			st.Name = strings.TrimSpace(line[len(keyName):])
		case strings.HasPrefix(line, keyState):
			st.Zombie = strings.Contains(line, "(zombie)")
		case strings.HasPrefix(line, keyPPid):
			fields := strings.Fields(line[len(keyPPid):])
			if len(fields) == 0 {
				continue
			}
			if v, err := strconv.Atoi(fields[0]); err == nil && v >= 0 {
				st.PPid = v
				st.HasPPid = true
			}
		case strings.HasPrefix(line, keyUID):
			if v, ok := leadingUint32(line[len(keyUID):]); ok {
				st.UID = v
				st.HasUID = true
			}
		}
	}
	if sc.Err() != nil {
		return Status{}, false
	}
	return st, true
}
