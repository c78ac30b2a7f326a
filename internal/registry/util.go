package registry

import (
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

type strset map[string]struct{}

func (s strset) add(v string) {
	s[v] = struct{}{}
}

func (s strset) has(v string) bool {
	_, ok := s[v]
	return ok
}

var now = func() time.Time {
	return time.Now().UTC()
}

// bootTime returns the host boot time in unix seconds.
var bootTime = host.BootTime

// startedAt converts a stat start time in clock ticks since boot into wall
// clock time. It returns the zero time when either input is unknown.
func startedAt(boot, ticks uint64) time.Time {
	if boot == 0 || ticks == 0 {
		return time.Time{}
	}
	return time.Unix(int64(boot+ticks/userHZ), 0).UTC()
}

var lookupUser = func(uid string) (string, error) {
	u, err := user.LookupId(uid)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// userCache maps uids to login names. Unknown uids render as the number.
type userCache map[uint32]string

func (c userCache) name(uid uint32) string {
	if n, ok := c[uid]; ok {
		return n
	}
	id := strconv.FormatUint(uint64(uid), 10)
	n, err := lookupUser(id)
	if err != nil || n == "" {
		n = id
	}
	c[uid] = n
	return n
}

// trimCmd drops the separator left after the last argument.
func trimCmd(cmd string) string {
	return strings.TrimRight(cmd, " ")
}
