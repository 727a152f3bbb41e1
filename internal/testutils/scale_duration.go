// Package testutils holds helpers shared by the integration tests.
package testutils

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TimescaleFactorEnv is the environment variable holding the timeout scale factor.
const TimescaleFactorEnv = "DCBENCH_TIMESCALE_FACTOR"

// ScaleDuration multiplies d with the factor read from DCBENCH_TIMESCALE_FACTOR.
// Timeouts of the integration tests are scaled on slow CI machines.
func ScaleDuration(d time.Duration) time.Duration {
	v := os.Getenv(TimescaleFactorEnv)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		panic(fmt.Sprintf("invalid %s: %q", TimescaleFactorEnv, v))
	}
	return time.Duration(f * float64(d))
}
