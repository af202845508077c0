//go:build unix

package column

import "syscall"

// mmapFile memory-maps the first size bytes of fd for reading, and for
// writing too when writable is set. The fd can be closed after mapping.
func mmapFile(fd uintptr, size int, writable bool) ([]byte, error) {
	prot := syscall.PROT_READ
	if writable {
		prot |= syscall.PROT_WRITE
	}
	return syscall.Mmap(int(fd), 0, size, prot, syscall.MAP_SHARED)
}

// munmapFile releases a memory mapping created by mmapFile.
func munmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	return syscall.Munmap(data)
}
