package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected an oops error, got %v", err)
	assert.Equal(t, code, oopsErr.Code())
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"serve", "migrate", "create-admin", "loadtest"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))

	migrate, _, err := root.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", migrate.Name())
}

func TestDatabaseURLPrecedence(t *testing.T) {
	t.Cleanup(func() { databaseURLFlag = "" })

	t.Setenv("DATABASE_URL", "")
	databaseURLFlag = ""
	_, err := databaseURL()
	requireCode(t, err, "CONFIG_INVALID")

	t.Setenv("DATABASE_URL", "postgres://env/teamgate")
	url, err := databaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/teamgate", url)

	databaseURLFlag = "postgres://flag/teamgate"
	url, err = databaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/teamgate", url)
}

func TestReadPasswordFromPipe(t *testing.T) {
	var prompt bytes.Buffer

	got, err := readPassword(strings.NewReader("s3cret-pass\r\nignored\n"), &prompt, false)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", got)
	assert.Empty(t, prompt.String(), "no prompt without a terminal")

	got, err = readPassword(strings.NewReader("no-newline"), &prompt, true)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readPassword(strings.NewReader("\n"), &prompt, true)
	requireCode(t, err, "PASSWORD_REQUIRED")
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(9), percentile(samples, 95))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Zero(t, percentile(nil, 50))
}

func TestComputeStats(t *testing.T) {
	samples := []time.Duration{30 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}

	s := computeStats(time.Second, samples, 1)
	assert.Equal(t, 3, s.ops)
	assert.Equal(t, int64(1), s.failures)
	assert.Equal(t, 20*time.Millisecond, s.p50)
	assert.Equal(t, 10*time.Millisecond, samples[0], "samples are sorted in place")
	assert.InDelta(t, 3.0, s.opsPerS, 0.001)

	empty := computeStats(time.Second, nil, 0)
	assert.Zero(t, empty.ops)
}

func TestLoadtestAgainstMiniredis(t *testing.T) {
	var out bytes.Buffer
	err := runLoadtest(context.Background(), &out, loadtestOptions{
		accounts:    4,
		concurrency: 2,
		ops:         20,
		argonMemory: 8 * 1024,
	})
	require.NoError(t, err)

	report := out.String()
	assert.Contains(t, report, "using miniredis")
	assert.Contains(t, report, "login+verify: ops=4 failures=0")
	assert.Contains(t, report, "validate: ops=20 failures=0")
}
