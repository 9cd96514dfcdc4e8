package identity

import (
	"os/user"
	"strconv"
	"sync"
	"time"
)

// fileStat is the platform-specific part of a file's metadata.
type fileStat struct {
	Created  time.Time
	Accessed time.Time
	UID      uint32
	HasUID   bool
}

var ownerCache sync.Map // uid -> name

// ownerName resolves a numeric owner to a user name, falling back to the
// number when the account is unknown.
func ownerName(st fileStat) string {
	if !st.HasUID {
		return ""
	}
	if name, ok := ownerCache.Load(st.UID); ok {
		return name.(string)
	}

	id := strconv.FormatUint(uint64(st.UID), 10)
	name := id
	if u, err := user.LookupId(id); err == nil && u.Username != "" {
		name = u.Username
	}

	ownerCache.Store(st.UID, name)
	return name
}
