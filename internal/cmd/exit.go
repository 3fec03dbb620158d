package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	apperrors "github.com/throttlegate/throttlegate/internal/errors"
)

// ExitWithCode logs err with the foundry exit code metadata and exits.
// logger may be nil for failures before logging is up.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		writeFatal(msg, err)
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID))
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
	}
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is ExitWithCode without a logger.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	ExitWithCode(nil, exitCode, msg, err)
}

// ExitCodeFor picks the exit code for a failed command from its envelope.
func ExitCodeFor(err error) foundry.ExitCode {
	var envelope *errors.ErrorEnvelope
	if !stderrors.As(err, &envelope) {
		return foundry.ExitFailure
	}
	switch envelope.Code {
	case apperrors.CodeConfigInvalid:
		return foundry.ExitConfigInvalid
	case apperrors.CodeDatabase, apperrors.CodeExternalService, apperrors.CodeServiceUnavailable:
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

func writeFatal(msg string, err error) {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope):
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s (correlation: %s)\n",
			msg, envelope.Code, envelope.Message, envelope.CorrelationID)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	}
}
