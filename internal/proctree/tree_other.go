//go:build !linux

package proctree

// Tree is only implemented on Linux.
func Tree(pid int) ([]Proc, error) {
	return nil, ErrUnsupported
}

func zombie(pid int) bool {
	return false
}

func groupAlive(pgid int) (alive, ok bool) {
	return false, false
}
