package monque

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// newInstanceID mirrors the teacher's worker-id convention
// (hostname-pid) but adds a random suffix so two instances started on the
// same host in the same process generation never collide.
func newInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "monque"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
