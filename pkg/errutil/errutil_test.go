package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestReasonSentinels(t *testing.T) {
	err := fmt.Errorf("select: %w", CapacityExceeded("no seats left"))

	require.True(t, errors.Is(err, ErrCapacityExceeded))
	require.False(t, errors.Is(err, ErrDuplicateApplication))
	require.True(t, HasReason(err, ReasonCapacityExceeded))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, StatusConflict, be.Status())
	require.Equal(t, http.StatusConflict, be.Code.HTTPStatus())
}

func TestValidationMapsToBadRequest(t *testing.T) {
	err := Validation("amount below minimum", WithDetails(Detail{Field: "amount", Message: "min 10000"}))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, http.StatusBadRequest, be.Code.HTTPStatus())
	require.Len(t, be.Details, 1)
	require.Contains(t, be.URL(), "error_reason=VALIDATION_ERROR")
}

func TestWrappedCauseIsKept(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("failed to load campaign", cause)

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection reset")
}

func TestToGRPCError(t *testing.T) {
	st, ok := status.FromError(ToGRPCError(InsufficientBalance("balance too low")))
	require.True(t, ok)
	require.Equal(t, codes.FailedPrecondition, st.Code())

	st, ok = status.FromError(ToGRPCError(NotFound("campaign not found", nil)))
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())

	st, ok = status.FromError(ToGRPCError(ConflictRetry("campaign changed concurrently")))
	require.True(t, ok)
	require.Equal(t, codes.Aborted, st.Code())
	require.Contains(t, st.Message(), "CONFLICT_RETRY")

	st, ok = status.FromError(ToGRPCError(CapacityExceeded("naver seats are full")))
	require.True(t, ok)
	require.Equal(t, codes.ResourceExhausted, st.Code())

	require.NoError(t, ToGRPCError(nil))
}
