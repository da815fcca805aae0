package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorIs(t *testing.T) {
	err := fmt.Errorf("gate: %w", QuotaExceeded("consume_credit"))

	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatal("expected wrapped quota error to match ErrQuotaExceeded")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("quota error must not match ErrNotFound")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("create_checkout_session", "unknown plan"), http.StatusBadRequest},
		{"auth", Authentication("verify_webhook", errors.New("bad sig")), http.StatusUnauthorized},
		{"not found", NotFound("get_faq", "FAQ not found"), http.StatusNotFound},
		{"quota", QuotaExceeded("consume_credit"), http.StatusForbidden},
		{"provider", PaymentProvider("create_checkout_session", errors.New("503")), http.StatusBadGateway},
		{"provider timeout", PaymentProvider("create_checkout_session", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"store write", StoreWrite("apply_event", errors.New("disk full")), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	if !IsRetryableError(PaymentProvider("op", errors.New("x"))) {
		t.Error("provider failures should be retryable")
	}
	if !IsRetryableError(StoreWrite("op", errors.New("x"))) {
		t.Error("store write failures should be retryable")
	}
	if IsRetryableError(Authentication("op", errors.New("x"))) {
		t.Error("signature failures are permanent")
	}
	if IsRetryableError(errors.New("plain")) {
		t.Error("untyped errors are not retryable")
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := StoreWrite("apply_event", errors.New("mongo: connection reset by 10.0.0.4"))
	if got := PublicMessage(err); got != "Something went wrong" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(Validation("op", "planId is required")); got != "planId is required" {
		t.Errorf("PublicMessage() = %q", got)
	}
}
