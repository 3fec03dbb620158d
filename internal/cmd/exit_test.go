package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/throttlegate/throttlegate/internal/errors"
)

func TestExitCodeFor(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want foundry.ExitCode
	}{
		{"plain error", cause, foundry.ExitFailure},
		{"config invalid", apperrors.NewConfigInvalidError("bad"), foundry.ExitConfigInvalid},
		{"wrapped config invalid", fmt.Errorf("load: %w", apperrors.WrapConfigInvalid(ctx, cause, "bad")), foundry.ExitConfigInvalid},
		{"database", apperrors.WrapDatabaseError(ctx, cause, "open store"), foundry.ExitExternalServiceUnavailable},
		{"unavailable", apperrors.NewServiceUnavailableError("down"), foundry.ExitExternalServiceUnavailable},
		{"internal", apperrors.NewInternalError("oops"), foundry.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}
