package common

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteVerbs(t *testing.T) {
	got, directive := CompleteVerbs(nil, nil, "de")

	assert.Equal(t, []string{"delete", "deletecollection"}, got)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
}

func TestCompleteFilterFields(t *testing.T) {
	got, _ := CompleteFilterFields(nil, nil, "")
	assert.Contains(t, got, "verb")

	got, _ = CompleteFilterFields(nil, nil, "zzz")
	assert.Empty(t, got)
}

func TestRegisterCompletions(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("verb", "", "")

	RegisterCompletions(cmd)

	fn, ok := cmd.GetFlagCompletionFunc("verb")
	require.True(t, ok)
	got, _ := fn(cmd, nil, "cr")
	assert.Equal(t, []string{"create"}, got)

	_, ok = cmd.GetFlagCompletionFunc("filter")
	assert.False(t, ok)
}
