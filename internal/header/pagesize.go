package header

import "golang.org/x/sys/unix"

// cachedPageSize memoizes the OS virtual-memory page size. The probe is a
// pure function of the running OS/architecture, so it is safe to cache for
// the life of the process.
var cachedPageSize = unix.Getpagesize()

// PageSize returns the OS virtual-memory page size, used as the default
// block_size/buffer_size across the store.
func PageSize() int { return cachedPageSize }
