//go:build darwin

package identity

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func platformStat(path string, _ os.FileInfo) (fileStat, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fileStat{}, err
	}

	return fileStat{
		Created:  time.Unix(st.Birthtimespec.Unix()).UTC(),
		Accessed: time.Unix(st.Atimespec.Unix()).UTC(),
		UID:      st.Uid,
		HasUID:   true,
	}, nil
}
