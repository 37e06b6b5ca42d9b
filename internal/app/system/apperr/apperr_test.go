package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("group not found"), http.StatusNotFound},
		{"forbidden", Forbidden("not allowed"), http.StatusForbidden},
		{"last owner", LastOwner("cannot remove the last owner"), http.StatusForbidden},
		{"capacity", Capacity("group is full"), http.StatusForbidden},
		{"conflict", Conflict("already a member"), http.StatusConflict},
		{"invalid argument", InvalidArgument("name is required"), http.StatusBadRequest},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests},
		{"upstream", Wrap(KindUpstreamFailure, "provider failed", errors.New("boom")), http.StatusBadGateway},
		{"plain error", errors.New("db down"), http.StatusInternalServerError},
		{"wrapped kind", fmt.Errorf("remove member: %w", NotFound("member not found")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestPublicMessage_HidesInternalErrors(t *testing.T) {
	if got := PublicMessage(errors.New("connection refused 10.0.0.3")); got != "internal server error" {
		t.Errorf("PublicMessage(plain) = %q", got)
	}
	if got := PublicMessage(Forbidden("only owners can delete a group")); got != "only owners can delete a group" {
		t.Errorf("PublicMessage(forbidden) = %q", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	base := errors.New("base")
	err := Wrap(KindConflict, "conflict", base)
	if !errors.Is(err, base) {
		t.Error("expected wrapped error to match base via errors.Is")
	}
	if !Is(err, KindConflict) {
		t.Error("expected Is(err, KindConflict) to be true")
	}
	if Is(nil, KindConflict) {
		t.Error("expected Is(nil, ...) to be false")
	}
}
