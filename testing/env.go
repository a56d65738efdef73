// Package testing switches the process into test mode when a test imports
// it for side effects. Binaries then skip connecting to Postgres and Redis,
// and config loading has the required secrets it needs.
package testing

import (
	"os"

	"github.com/odyssey-erp/payables/internal/app"
)

var defaults = map[string]string{
	"CSRF_SECRET":   "test-csrf-secret",
	"GOTENBERG_URL": "http://127.0.0.1:0",
	"TALLY_URL":     "http://127.0.0.1:0",
}

func init() {
	_ = os.Setenv("PAYABLES_TEST_MODE", "1")
	for key, value := range defaults {
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	app.RefreshTestMode()
}
