package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/okian/besttime/internal/adapters/storage"
	"github.com/okian/besttime/internal/domain/leaderboard"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := WrapKind("api.test", ErrBadRequest, cause)

	if !errors.Is(err, ErrBadRequest) {
		t.Error("kind should be matchable")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be matchable")
	}
	if got := err.Error(); got != "api.test: bad request: boom" {
		t.Errorf("unexpected message %q", got)
	}
	if Wrap("api.test", nil) != nil {
		t.Error("wrapping nil should stay nil")
	}

	var apiErr *Error
	if !errors.As(NewKind("api.x", ErrForbidden), &apiErr) || apiErr.Op != "api.x" {
		t.Error("expected *Error with op")
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{Wrap("op", fmt.Errorf("%w: too fast", leaderboard.ErrInvalidInput)), http.StatusBadRequest, "invalid_record"},
		{NewKind("op", ErrBadRequest), http.StatusBadRequest, "bad_request"},
		{Wrap("op", storage.ErrInvalidInput), http.StatusBadRequest, "bad_request"},
		{NewKind("op", ErrUnauthorized), http.StatusUnauthorized, "unauthorized"},
		{Wrap("op", leaderboard.ErrLocked), http.StatusForbidden, "forbidden"},
		{Wrap("op", storage.ErrNotFound), http.StatusNotFound, "not_found"},
		{NewKind("op", ErrThrottled), http.StatusTooManyRequests, "too_many_requests"},
		{WrapKind("op", ErrUnavailable, errors.New("x")), http.StatusServiceUnavailable, "unavailable"},
		{errors.New("anything else"), http.StatusInternalServerError, "internal_error"},
	}
	for _, c := range cases {
		status, code := statusOf(c.err)
		if status != c.status || code != c.code {
			t.Errorf("statusOf(%v) = %d %s, want %d %s", c.err, status, code, c.status, c.code)
		}
	}
}

func TestThrottleAllow(t *testing.T) {
	if newThrottle(0, 5) != nil {
		t.Fatal("a zero rate should disable throttling")
	}
	var disabled *throttle
	if !disabled.allow("p") {
		t.Fatal("a nil throttle allows everything")
	}

	th := newThrottle(1, 2)
	if !th.allow("p") || !th.allow("p") {
		t.Fatal("burst of two should pass")
	}
	if th.allow("p") {
		t.Fatal("third immediate request should be throttled")
	}
	if !th.allow("q") {
		t.Fatal("buckets are per player")
	}
}
