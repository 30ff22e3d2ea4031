package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertStepRan checks captured log output to confirm that the step with
// key finished.
func AssertStepRan(t *testing.T, logOutput, key string) {
	t.Helper()

	for _, line := range strings.Split(logOutput, "\n") {
		if strings.Contains(line, "Finished step") && strings.Contains(line, fmt.Sprintf("step=%s", key)) {
			return
		}
	}
	require.Fail(t, "step did not finish", "expected a finished log line for step '%s'", key)
}
