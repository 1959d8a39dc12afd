package nop

import "golang.org/x/sys/unix"

// pipe2 opens the wake pipe non-blocking on both ends: Poll may run
// against it before the core has forced the read end non-blocking, and a
// full pipe must never stall Next.
func pipe2(fds []int) error {
	var raw [2]int
	if err := unix.Pipe2(raw[:], unix.O_NONBLOCK); err != nil {
		return err
	}
	fds[0], fds[1] = raw[0], raw[1]
	return nil
}

func closeFd(fd int) {
	if fd != 0 {
		unix.Close(fd)
	}
}

func writeByte(fd int) {
	unix.Write(fd, []byte{0})
}

func drainFd(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
