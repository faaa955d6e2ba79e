package process

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

type Credential struct {
	UID uint32
	GID uint32

	Username string
	HomeDir  string
}

// LookupCredential resolves the uid of owner and the gid of group. When
// group is empty the primary group of owner is used.
func LookupCredential(owner string, group string) (*Credential, error) {
	u, err := user.Lookup(owner)
	if err != nil {
		return nil, fmt.Errorf("looking up user %q: %w", owner, err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing uid of %q: %w", owner, err)
	}

	gidStr := u.Gid
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return nil, fmt.Errorf("looking up group %q: %w", group, err)
		}
		gidStr = g.Gid
	}

	gid, err := strconv.ParseUint(gidStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing gid %q: %w", gidStr, err)
	}

	return &Credential{
		UID:      uint32(uid),
		GID:      uint32(gid),
		Username: u.Username,
		HomeDir:  u.HomeDir,
	}, nil
}

// isCurrent reports whether the process already runs with the credential,
// in which case no identity switch is needed.
func (c *Credential) isCurrent() bool {
	return int(c.UID) == os.Getuid() && int(c.GID) == os.Getgid()
}
