package procfs

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// DefaultRoot is where the kernel exposes per-process records.
	DefaultRoot = "/proc"

	// DefaultRetryDelay is how long ListPIDs waits before its single retry.
	DefaultRetryDelay = 2 * time.Second

	// DefaultMaxPIDs is used when the kernel limit cannot be read.
	DefaultMaxPIDs = 32769
)

// Memory holds page counts taken from the statm record.
type Memory struct {
	Resident uint64
	Shared   uint64
}

// CPUTime holds scheduler ticks taken from the stat record.
type CPUTime struct {
	User   uint64
	System uint64
}

// NetCounters holds byte counters summed over every interface in net/dev.
type NetCounters struct {
	RxBytes uint64
	TxBytes uint64
}

// Reader reads per-process records below a proc root. A record that cannot
// be opened means the process is gone; readers report that as ok=false and
// never as an error.
type Reader struct {
	root       string
	retryDelay time.Duration
	self       int
	sorted     bool
}

// Option customizes a Reader.
type Option func(*Reader)

// WithSelf sets the pid skipped by listings instead of the caller's own.
func WithSelf(pid int) Option {
	return func(r *Reader) { r.self = pid }
}

// WithSortedListing makes ListPIDs return pids in ascending order rather
// than directory order.
func WithSortedListing() Option {
	return func(r *Reader) { r.sorted = true }
}

// NewReader returns a Reader rooted at root. An empty root means DefaultRoot
// and a non-positive delay means DefaultRetryDelay.
func NewReader(root string, retryDelay time.Duration, opts ...Option) *Reader {
	if root == "" {
		root = DefaultRoot
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	r := &Reader{
		root:       root,
		retryDelay: retryDelay,
		self:       unix.Getpid(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the directory the reader scans.
func (r *Reader) Root() string {
	return r.root
}

// Self returns the pid the reader treats as the caller and skips in listings.
func (r *Reader) Self() int {
	return r.self
}

func (r *Reader) path(pid int, name ...string) string {
	parts := append([]string{r.root, strconv.Itoa(pid)}, name...)
	return filepath.Join(parts...)
}

// AddMemory adds the resident and shared page counts of pid to m.
func (r *Reader) AddMemory(pid int, m *Memory) bool {
	data, err := os.ReadFile(r.path(pid, "statm"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return false
	}
	var vals [3]uint64
	for i := range vals {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return false
		}
		vals[i] = v
	}
	m.Resident += vals[1]
	m.Shared += vals[2]
	return true
}

// CPUTime returns the user and system ticks of pid. Fields are located by
// position: the first 13 separators are skipped whatever they contain.
func (r *Reader) CPUTime(pid int) (CPUTime, bool) {
	line, ok := r.firstLine(pid, "stat")
	if !ok {
		return CPUTime{}, false
	}
	vals, ok := numbersAfter(line, 13, 2)
	if !ok {
		return CPUTime{}, false
	}
	return CPUTime{User: vals[0], System: vals[1]}, true
}

// StartTime returns the start time of pid in ticks since boot.
func (r *Reader) StartTime(pid int) (uint64, bool) {
	line, ok := r.firstLine(pid, "stat")
	if !ok {
		return 0, false
	}
	vals, ok := numbersAfter(line, 21, 1)
	if !ok {
		return 0, false
	}
	return vals[0], true
}

// OwnerUID returns the real uid from the status record of pid.
func (r *Reader) OwnerUID(pid int) (uint32, bool) {
	f, err := os.Open(r.path(pid, "status"))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), keyUID); ok {
			return leadingUint32(v)
		}
	}
	return 0, false
}

// Comm returns the executable short name of pid.
func (r *Reader) Comm(pid int) (string, bool) {
	data, err := os.ReadFile(r.path(pid, "comm"))
	if err != nil {
		return "", false
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	if len(data) == 0 {
		return "", false
	}
	return string(data), true
}

// Cmdline returns the argument vector of pid with every NUL turned into a
// space, so the usual trailing NUL becomes a trailing space.
func (r *Reader) Cmdline(pid int) (string, bool) {
	data, err := os.ReadFile(r.path(pid, "cmdline"))
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(bytes.ReplaceAll(data, []byte{0}, []byte{' '})), true
}

// Args returns the argument vector of pid split on NUL.
func (r *Reader) Args(pid int) ([]string, bool) {
	data, err := os.ReadFile(r.path(pid, "cmdline"))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	data = bytes.TrimSuffix(data, []byte{0})
	return strings.Split(string(data), "\x00"), true
}

// NetDev sums receive and transmit bytes over every interface listed in the
// net/dev record of pid. Rows without the full nine leading counters are
// ignored; a row without an interface separator ends the scan.
func (r *Reader) NetDev(pid int) (NetCounters, bool) {
	f, err := os.Open(r.path(pid, "net", "dev"))
	if err != nil {
		return NetCounters{}, false
	}
	defer f.Close()

	var nc NetCounters
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "Inter") || strings.HasPrefix(line, " face") {
			continue
		}
		_, counters, found := strings.Cut(line, ":")
		if !found {
			break
		}
		fields := strings.Fields(counters)
		if len(fields) < 9 {
			continue
		}
		var vals [9]uint64
		ok := true
		for i := range vals {
			v, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		nc.RxBytes += vals[0]
		nc.TxBytes += vals[8]
	}
	return nc, true
}

func (r *Reader) firstLine(pid int, name string) (string, bool) {
	f, err := os.Open(r.path(pid, name))
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return "", false
	}
	return sc.Text(), true
}

// numbersAfter skips n fields, each ended by a single space or tab, and
// parses the next want whitespace-separated unsigned integers.
func numbersAfter(line string, n, want int) ([]uint64, bool) {
	rest := line
	for i := 0; i < n; i++ {
		j := strings.IndexAny(rest, " \t")
		if j < 0 {
			return nil, false
		}
		rest = rest[j+1:]
	}
	fields := strings.Fields(rest)
	if len(fields) < want {
		return nil, false
	}
	out := make([]uint64, want)
	for i := range out {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func leadingUint32(s string) (uint32, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
