package relay

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/drop-protocol/coordinator/coordinator/metrics"
)

// MockExecutor is a mock implementation of Executor
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Run(ctx context.Context, name string, args ...string) (Result, error) {
	called := m.Called(ctx, name, args)
	return called.Get(0).(Result), called.Error(1)
}

// makeFakeRelayer writes a shell script that records its arguments and
// behaves according to the first query id it receives.
func makeFakeRelayer(t *testing.T) (bin, argsFile string) {
	if runtime.GOOS == "windows" {
		t.Skip("windows not supported in this test")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, "icq-relayer")
	argsFile = filepath.Join(dir, "args")
	script := "#!/usr/bin/env sh\n" +
		"echo \"$@\" > '" + argsFile + "'\n" +
		"if [ \"$2\" = \"fail\" ]; then echo 'proof submission failed' >&2; exit 3; fi\n" +
		"if [ \"$2\" = \"hang\" ]; then sleep 10; fi\n" +
		"echo 'relayed'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, argsFile
}

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name     string
		template []string
		ids      []string
		wantName string
		wantArgs []string
	}{
		{
			name:     "binary only",
			template: []string{"icq-relayer"},
			ids:      []string{"7", "9"},
			wantName: "icq-relayer",
			wantArgs: []string{"-q", "7", "-q", "9"},
		},
		{
			name:     "template with leading args",
			template: []string{"neutron_query_relayer", "start", "--once"},
			ids:      []string{"1"},
			wantName: "neutron_query_relayer",
			wantArgs: []string{"start", "--once", "-q", "1"},
		},
		{
			name:     "empty template",
			template: nil,
			ids:      []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args := BuildCommand(tt.template, tt.ids)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestRelayBuildsExactlyOneInvocation(t *testing.T) {
	exec := new(MockExecutor)
	exec.On("Run", mock.Anything, "icq-relayer", []string{"-q", "7", "-q", "9"}).
		Return(Result{Stdout: "ok", ExitCode: 0}, nil).Once()

	m := metrics.New()
	inv := NewInvoker([]string{"icq-relayer"}, exec, time.Second, m, zerolog.Nop())

	assert.True(t, inv.Relay(context.Background(), []string{"7", "9"}))
	exec.AssertExpectations(t)
	exec.AssertNumberOfCalls(t, "Run", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RelayInvocationsTotal.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RelayQueryIDsTotal))
}

func TestRelayFailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		err    error
	}{
		{name: "non-zero exit", result: Result{Stderr: "boom", ExitCode: 2}},
		{name: "spawn error", result: Result{ExitCode: -1}, err: errors.New("exec: not found")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := new(MockExecutor)
			exec.On("Run", mock.Anything, "icq-relayer", []string{"-q", "7"}).Return(tt.result, tt.err)

			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			m := metrics.New()
			inv := NewInvoker([]string{"icq-relayer"}, exec, time.Second, m, logger)

			var ok bool
			assert.NotPanics(t, func() { ok = inv.Relay(context.Background(), []string{"7"}) })
			assert.False(t, ok)
			assert.Contains(t, buf.String(), `"level":"error"`)
			assert.Contains(t, buf.String(), "icq relayer failed")
			assert.Equal(t, float64(1), testutil.ToFloat64(m.RelayInvocationsTotal.WithLabelValues(metrics.OutcomeFailure)))
		})
	}
}

func TestRelayRecoversExecutorPanic(t *testing.T) {
	exec := new(MockExecutor)
	exec.On("Run", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("executor exploded")
	})

	m := metrics.New()
	inv := NewInvoker([]string{"icq-relayer"}, exec, time.Second, m, zerolog.Nop())

	var ok bool
	assert.NotPanics(t, func() { ok = inv.Relay(context.Background(), []string{"7"}) })
	assert.False(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PanicRecoveriesTotal.WithLabelValues("icq_relay")))
}

func TestRelayEmptyIsNoop(t *testing.T) {
	exec := new(MockExecutor)
	inv := NewInvoker([]string{"icq-relayer"}, exec, time.Second, nil, zerolog.Nop())

	assert.False(t, inv.Relay(context.Background(), nil))
	exec.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestRelayAppliesTimeout(t *testing.T) {
	exec := new(MockExecutor)
	exec.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "icq-relayer", []string{"-q", "1"}).Return(Result{}, nil)

	inv := NewInvoker([]string{"icq-relayer"}, exec, 50*time.Millisecond, nil, zerolog.Nop())
	assert.True(t, inv.Relay(context.Background(), []string{"1"}))
	exec.AssertExpectations(t)
}

func TestExecExecutorWithFakeRelayer(t *testing.T) {
	bin, argsFile := makeFakeRelayer(t)

	t.Run("success", func(t *testing.T) {
		res, err := ExecExecutor{}.Run(context.Background(), bin, "-q", "7", "-q", "9")
		require.NoError(t, err)
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, "relayed", strings.TrimSpace(res.Stdout))

		recorded, err := os.ReadFile(argsFile)
		require.NoError(t, err)
		assert.Equal(t, "-q 7 -q 9", strings.TrimSpace(string(recorded)))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		res, err := ExecExecutor{}.Run(context.Background(), bin, "-q", "fail")
		require.Error(t, err)
		assert.Equal(t, 3, res.ExitCode)
		assert.Contains(t, res.Stderr, "proof submission failed")
	})

	t.Run("missing binary", func(t *testing.T) {
		res, err := ExecExecutor{}.Run(context.Background(), filepath.Join(t.TempDir(), "absent"))
		require.Error(t, err)
		assert.Equal(t, -1, res.ExitCode)
	})

	t.Run("context deadline kills process", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := ExecExecutor{}.Run(ctx, bin, "-q", "hang")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 8*time.Second)
	})
}

func TestInvokerWithFakeRelayer(t *testing.T) {
	bin, argsFile := makeFakeRelayer(t)
	inv := NewInvoker([]string{bin}, ExecExecutor{}, 5*time.Second, nil, zerolog.Nop())

	assert.True(t, inv.Relay(context.Background(), []string{"7", "9"}))
	recorded, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "-q 7 -q 9", strings.TrimSpace(string(recorded)))

	assert.False(t, inv.Relay(context.Background(), []string{"fail"}))
}
