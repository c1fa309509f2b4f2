// Package testutil gates tests that need external infrastructure.
package testutil

import (
	"os"
	"strings"
	"testing"
)

// MongoURIEnv names a replica set the integration tests may use instead of
// starting a container.
const MongoURIEnv = "DOCSYNC_TEST_MONGO_URI"

// RequireIntegration skips the test in short mode, and in CI unless
// INTEGRATION_TESTS is set.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("INTEGRATION_TESTS") == "" && os.Getenv("CI") != "" {
		t.Skip("skipping integration test (set INTEGRATION_TESTS=1 to run)")
	}
}

// ExternalMongoURI returns the replica set named by MongoURIEnv, or "".
func ExternalMongoURI() string {
	return strings.TrimSpace(os.Getenv(MongoURIEnv))
}
