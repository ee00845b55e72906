package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/sigils/internal/game/behavior"
)

func TestFlatten(t *testing.T) {
	err := fmt.Errorf("loading behaviors x.yaml: %w", errors.Join(
		fmt.Errorf("behavior #1 (burn): %w", errors.Join(
			fmt.Errorf("flow #1: %w", fmt.Errorf("%w: explode", behavior.ErrUnknownAction)),
			fmt.Errorf("flow #2: %w", behavior.ErrUnknownTrigger),
		)),
		errors.New("behavior #2: missing id"),
	))

	got := flatten(err)
	require.Len(t, got, 3)
	assert.Equal(t, "loading behaviors x.yaml: behavior #1 (burn): flow #1: unknown action: explode", got[0].text)
	assert.ErrorIs(t, got[0].err, behavior.ErrUnknownAction)
	assert.Equal(t, "loading behaviors x.yaml: behavior #1 (burn): flow #2: unknown trigger", got[1].text)
	assert.Equal(t, "loading behaviors x.yaml: behavior #2: missing id", got[2].text)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	behaviors := filepath.Join(dir, "behaviors.yaml")
	cfgPath := filepath.Join(dir, "sigils.yaml")

	require.NoError(t, os.WriteFile(behaviors, []byte(`
behaviors:
  - id: burn
    flows:
      - trigger: tick
        steps:
          - action: explode
  - id: idle
`), 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("behaviors_file: "+behaviors+"\n"), 0o644))
	t.Setenv("SIGILS_CONFIG", cfgPath)

	var out bytes.Buffer
	n := check(&out)

	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "unknown action")
	assert.Contains(t, out.String(), "known actions")
}

func TestCheck_MissingBehaviorsFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sigils.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("behaviors_file: "+filepath.Join(dir, "absent.yaml")+"\n"), 0o644))
	t.Setenv("SIGILS_CONFIG", cfgPath)

	var out bytes.Buffer
	assert.Equal(t, 1, check(&out))
	assert.Contains(t, out.String(), "absent.yaml")
}
