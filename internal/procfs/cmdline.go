package procfs

import "strings"

const nameArg = "--name="

// NestedGraphics reports whether pid is a manager process started with an
// --x11 flag family option other than --x11=xorg. Such a process wraps a
// graphics server around an inner manager and is not a sandbox of its own.
// Only leading "--" options are inspected; a bare "--" or the first
// non-option argument ends the scan.
func (r *Reader) NestedGraphics(pid int, manager string) bool {
	comm, ok := r.Comm(pid)
	if !ok || comm != manager {
		return false
	}
	args, ok := r.Args(pid)
	if !ok {
		return false
	}
	return hasNestedGraphicsFlag(args)
}

func hasNestedGraphicsFlag(args []string) bool {
	if len(args) < 2 {
		return false
	}
	for _, arg := range args[1:] {
		if arg == "--" || !strings.HasPrefix(arg, "--") {
			return false
		}
		if arg == "--x11=xorg" {
			return false
		}
		if strings.HasPrefix(arg, "--x11") {
			return true
		}
	}
	return false
}

// NameArg extracts the value of the first --name= argument in a joined
// command line. The value ends at the next space, tab or end of text.
func NameArg(cmdline string) (string, bool) {
	i := strings.Index(cmdline, nameArg)
	if i < 0 {
		return "", false
	}
	val := cmdline[i+len(nameArg):]
	if j := strings.IndexAny(val, " \t"); j >= 0 {
		val = val[:j]
	}
	return val, true
}
