//go:build linux

package identity

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func platformStat(path string, _ os.FileInfo) (fileStat, error) {
	var stx unix.Statx_t
	mask := unix.STATX_BTIME | unix.STATX_ATIME | unix.STATX_CTIME | unix.STATX_UID
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, mask, &stx); err != nil {
		return fileStat{}, err
	}

	created := stx.Ctime
	if stx.Mask&unix.STATX_BTIME != 0 {
		created = stx.Btime
	}

	return fileStat{
		Created:  statxTime(created),
		Accessed: statxTime(stx.Atime),
		UID:      stx.Uid,
		HasUID:   true,
	}, nil
}

func statxTime(ts unix.StatxTimestamp) time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec)).UTC()
}
