//go:build !linux

package scheduler

// pinToCPU is a no-op on platforms with no cheap per-thread affinity
// syscall exposed through golang.org/x/sys (BSD/Darwin's affinity
// controls are process-wide or absent depending on kernel; Windows'
// SetThreadAffinityMask would need its own HANDLE plumbing this package
// has no use for elsewhere). spec.md §4.6 explicitly allows this:
// "on systems where affinity is unavailable, pinning is a no-op and
// this is not an error."
func pinToCPU(id int) {}
