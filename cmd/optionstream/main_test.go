package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheck(t *testing.T) {
	spec := `{"kind":"all","children":[{"kind":"starts_with","value":"ORDER:"},{"kind":"contains","value":"EURUSD"}]}`

	out, err := execute("check", "--validator", spec, "ORDER: BUY EURUSD 100 60")
	require.NoError(t, err)
	assert.Equal(t, "all(starts_with(\"ORDER:\"),contains(\"EURUSD\"))\ttrue\n", out)

	out, err = execute("check", "--validator", spec, "ORDER:", "BUY", "GBPUSD")
	assert.ErrorIs(t, err, errNoMatch)
	assert.Contains(t, out, "false")
}

func TestCheck_Errors(t *testing.T) {
	_, err := execute("check", "--validator", `{"kind":"regex","value":"("}`, "x")
	assert.ErrorContains(t, err, "invalid regex")

	_, err = execute("check", "--validator", `not json`, "x")
	assert.ErrorContains(t, err, "parse --validator")

	_, err = execute("check")
	assert.Error(t, err)
}

func TestCheck_DefaultMatchesAnything(t *testing.T) {
	out, err := execute("check", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "true")
}

func TestRun_BadConfig(t *testing.T) {
	_, err := execute("run", "--config", "/nonexistent/config.yaml")
	assert.ErrorContains(t, err, "read config")
}
