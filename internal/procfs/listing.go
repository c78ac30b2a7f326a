package procfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrProcUnavailable means the process-listing directory could not be opened
// even after a retry. Nothing downstream can work without it.
var ErrProcUnavailable = errors.New("process listing unavailable")

// sleep is swapped out by tests.
var sleep = time.Sleep

// ListPIDs returns every numeric entry of the proc root in directory order.
// A failed open is retried once after the reader's retry delay.
func (r *Reader) ListPIDs() ([]int, error) {
	names, err := r.readNames()
	if err != nil {
		sleep(r.retryDelay)
		names, err = r.readNames()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot open %s directory: %v", ErrProcUnavailable, r.root, err)
		}
	}

	pids := make([]int, 0, len(names))
	for _, name := range names {
		v, err := strconv.ParseUint(name, 10, 31)
		if err != nil {
			continue
		}
		pids = append(pids, int(v))
	}
	if r.sorted {
		sort.Ints(pids)
	}
	return pids, nil
}

func (r *Reader) readNames() ([]string, error) {
	dir, err := os.Open(r.root)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	// Readdirnames keeps the kernel's listing order.
	return dir.Readdirnames(-1)
}

// MaxPIDs returns the table capacity: the kernel pid_max plus one, or
// DefaultMaxPIDs when the limit is missing or lower.
func (r *Reader) MaxPIDs() int {
	limit := DefaultMaxPIDs
	data, err := os.ReadFile(filepath.Join(r.root, "sys", "kernel", "pid_max"))
	if err != nil {
		return limit
	}
	val, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return limit
	}
	if val >= limit {
		limit = val + 1
	}
	return limit
}
