package index

import (
	"os"
	"syscall"

	"github.com/castorvc/castor/internal/castor/types"
)

// StatFile captures the stat-cache tuple for path. Inode-level fields
// come from the underlying syscall stat when available; on platforms
// or filesystems that do not expose them they stay zero, which simply
// makes the fast path more conservative.
func StatFile(path string) (types.StatCache, os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return types.StatCache{}, nil, err
	}
	return StatFromInfo(info), info, nil
}

// StatFromInfo builds a StatCache from an os.FileInfo.
func StatFromInfo(info os.FileInfo) types.StatCache {
	sc := types.StatCache{
		Size:      info.Size(),
		MtimeSec:  info.ModTime().Unix(),
		MtimeNsec: int64(info.ModTime().Nanosecond()),
		Mode:      uint32(info.Mode()),
	}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		sc.CtimeSec = sys.Ctim.Sec
		sc.CtimeNsec = sys.Ctim.Nsec
		sc.Dev = uint64(sys.Dev)
		sc.Ino = sys.Ino
		sc.UID = sys.Uid
		sc.GID = sys.Gid
	}
	return sc
}

// Unchanged reports whether the cached stat proves the file content is
// unchanged. It is a heuristic, not a proof: equal size and
// nanosecond-granular mtime on the same inode is taken as unchanged.
// A zero mtime (filesystems without timestamps) is never trusted.
// Paranoid mode bypasses this check entirely and rehashes.
func Unchanged(cached, current types.StatCache) bool {
	if cached.MtimeSec == 0 && cached.MtimeNsec == 0 {
		return false
	}
	return cached.Size == current.Size &&
		cached.MtimeSec == current.MtimeSec &&
		cached.MtimeNsec == current.MtimeNsec &&
		cached.Ino == current.Ino &&
		cached.Dev == current.Dev &&
		cached.Mode == current.Mode
}
