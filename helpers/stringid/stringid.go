package stringid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	idLength      = 12
	shortIDLength = 4
)

// New returns a 24 character hex string that never parses as an integer,
// so it can't be mistaken for a numeric remote id.
func New() string {
	return generate(idLength)
}

func Short() string {
	return generate(shortIDLength)
}

// RunnerName returns the name under which a runner of the pool is
// registered with the platform.
func RunnerName(prefix, pool string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, pool, Short())
}

func InstanceID(pool string) string {
	return fmt.Sprintf("%s-%s", pool, Short())
}

func generate(length int) string {
	for {
		data := make([]byte, length)
		if _, err := rand.Read(data); err != nil {
			panic(err)
		}

		id := hex.EncodeToString(data)

		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			continue
		}

		return id
	}
}
