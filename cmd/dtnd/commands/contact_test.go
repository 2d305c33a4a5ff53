package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactAddThenListRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.ini")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	viper.Set("schedule-file", path)
	t.Cleanup(func() { viper.Set("schedule-file", "") })

	require.NoError(t, runContactAdd(contactAddCmd, []string{
		"mtcp", "dtn://ground", "10.0.0.1:4556", "2026-08-01T10:00:00Z", "2026-08-01T10:30:00Z",
	}))

	require.NoError(t, runContactList(contactListCmd, nil))
}

func TestScheduleFilePathRequiresFlag(t *testing.T) {
	viper.Set("schedule-file", "")
	_, err := scheduleFilePath()
	assert.Error(t, err)
}
