package relay

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
	"github.com/drop-protocol/coordinator/coordinator/metrics"
)

const queryFlag = "-q"

// Relayer hands pending interchain query identifiers to the external relayer.
type Relayer interface {
	// Relay reports whether the relayer succeeded. Failures are logged, never returned.
	Relay(ctx context.Context, ids []string) bool
}

// Invoker runs the configured relayer command once per Relay call.
type Invoker struct {
	command  []string
	executor Executor
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewInvoker builds an Invoker. command is the binary followed by its fixed leading arguments.
func NewInvoker(command []string, executor Executor, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Invoker {
	if executor == nil {
		executor = ExecExecutor{}
	}
	return &Invoker{
		command:  append([]string(nil), command...),
		executor: executor,
		timeout:  timeout,
		metrics:  m,
		logger:   logger.With().Str("component", "icq_relay").Logger(),
	}
}

// BuildCommand returns the binary and arguments for relaying ids: the template
// followed by one "-q <id>" pair per identifier, in order.
func BuildCommand(template []string, ids []string) (string, []string) {
	if len(template) == 0 {
		return "", nil
	}
	args := append([]string(nil), template[1:]...)
	for _, id := range ids {
		args = append(args, queryFlag, id)
	}
	return template[0], args
}

// Relay runs the relayer for ids. An empty set is a no-op.
func (i *Invoker) Relay(ctx context.Context, ids []string) (ok bool) {
	if len(ids) == 0 {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			i.metrics.ObservePanic("icq_relay")
			i.logger.Error().
				Err(coorderrors.NewPanicError("", r)).
				Str("stack_trace", string(debug.Stack())).
				Msg("relayer invocation panicked")
			ok = false
		}
		i.metrics.ObserveRelay(ok, len(ids))
	}()

	name, args := BuildCommand(i.command, ids)
	if name == "" {
		i.logger.Error().
			Err(coorderrors.NewRelayError("relayer command is not configured", nil)).
			Strs("query_ids", ids).
			Msg("cannot relay")
		return false
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	i.logger.Info().
		Strs("query_ids", ids).
		Str("command", name+" "+strings.Join(args, " ")).
		Msg("running icq relayer")

	start := time.Now()
	res, err := i.executor.Run(ctx, name, args...)
	took := time.Since(start)

	if res.Stdout != "" {
		i.logger.Debug().Str("stdout", res.Stdout).Msg("icq relayer output")
	}

	if err != nil || res.ExitCode != 0 {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("exit code %d", res.ExitCode)
		}
		i.logger.Error().
			Err(coorderrors.NewRelayError("icq relayer failed", cause)).
			Strs("query_ids", ids).
			Int("exit_code", res.ExitCode).
			Str("stderr", res.Stderr).
			Dur("took", took).
			Msg("icq relayer failed")
		return false
	}

	i.logger.Info().
		Strs("query_ids", ids).
		Dur("took", took).
		Msg("icq relayer finished")
	return true
}
