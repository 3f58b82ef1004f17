package preflight

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecker_AllPassReturnsPassed(t *testing.T) {
	c := NewChecker().
		Add("config_load", func() error { return nil }).
		Add("single_instance", func() error { return nil })

	result := c.Run()
	require.True(t, result.Passed)
	require.Equal(t, []string{"config_load", "single_instance"}, result.ChecksRun)
}

func TestChecker_StopsAtFirstFailure(t *testing.T) {
	var ranThird bool
	c := NewChecker().
		Add("config_load", func() error { return nil }).
		Add("single_instance", func() error { return errors.New("another instance is already running") }).
		Add("hook_capability", func() error { ranThird = true; return nil })

	result := c.Run()
	require.False(t, result.Passed)
	require.Equal(t, "single_instance", result.FailedAt)
	require.Contains(t, result.Reason, "another instance is already running")
	require.Equal(t, []string{"config_load", "single_instance"}, result.ChecksRun)
	require.False(t, ranThird, "checks after a failure must not run")
}
