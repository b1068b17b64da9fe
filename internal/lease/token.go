package lease

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewOwnerToken returns an opaque token identifying this host and process.
// The random suffix keeps tokens distinct when a pid is reused after a restart.
func NewOwnerToken() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
