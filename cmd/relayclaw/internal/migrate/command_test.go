package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrateCommand(t *testing.T) {
	cmd := NewMigrateCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "migrate", cmd.Use)
	assert.Equal(t, "Migrate configuration from legacy formats", cmd.Short)

	assert.True(t, cmd.HasExample())
	assert.True(t, cmd.HasSubCommands())
}

func TestNewMigrateCommand_EnvSubcommand(t *testing.T) {
	cmd := NewMigrateCommand()

	envCmd, _, err := cmd.Find([]string{"env"})
	require.NoError(t, err)
	require.NotNil(t, envCmd)

	assert.Equal(t, "env", envCmd.Use)
	assert.Nil(t, envCmd.Run)
	assert.NotNil(t, envCmd.RunE)

	assert.NotNil(t, envCmd.Flags().Lookup("env"))
	assert.NotNil(t, envCmd.Flags().Lookup("output"))
	assert.NotNil(t, envCmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, envCmd.Flags().Lookup("force"))
}
