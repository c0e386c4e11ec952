package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparkrt/app"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, app.DefaultConfig().Validate())
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := app.ParseConfig([]byte(`
kernel:
  priorities: 32
run:
  ticks: 10
workload:
  producers: 4
  message_size: 16
`))
	require.NoError(t, err)

	want := app.DefaultConfig()
	want.Kernel.Priorities = 32
	want.Run.Ticks = 10
	want.Workload.Producers = 4
	want.Workload.MessageSize = 16
	assert.Equal(t, want, cfg)
}

func TestParseConfigEmpty(t *testing.T) {
	t.Parallel()

	cfg, err := app.ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, app.DefaultConfig(), cfg)
}

func TestParseConfigRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := app.ParseConfig([]byte("kernel:\n  cores: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cores")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mutate func(*app.Config)
		want   int
	}{
		"priorities too few": {
			mutate: func(c *app.Config) { c.Kernel.Priorities = 2 },
			want:   1,
		},
		"priorities too many": {
			mutate: func(c *app.Config) { c.Kernel.Priorities = 65 },
			want:   1,
		},
		"block smaller than message": {
			mutate: func(c *app.Config) { c.Workload.BlockSize = c.Workload.MessageSize - 1 },
			want:   1,
		},
		"several at once": {
			mutate: func(c *app.Config) {
				c.Kernel.TickHz = 0
				c.Workload.Producers = 0
				c.Workload.HeartbeatTicks = 0
				c.Workload.MessageSize = 4
			},
			want: 4,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := app.DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, app.ErrInvalidConfig)

			var merr *multierror.Error
			require.ErrorAs(t, err, &merr)
			assert.Len(t, merr.Errors, tc.want)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sparkrt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  virtual: false\n"), 0o600))

	cfg, err := app.LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Run.Virtual)

	_, err = app.LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := app.DefaultConfig()
	cfg.Workload.Readers = 5

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "readers: 5")

	back, err := app.ParseConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}
