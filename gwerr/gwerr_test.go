package gwerr

import (
	"errors"
	"testing"
)

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{Connection, true},
		{Timeout, true},
		{Configuration, false},
		{Validation, false},
		{AddressResolution, false},
		{Encoding, false},
		{Protocol, false},
		{Cancelled, false},
		{Unknown, false},
	}
	for _, c := range cases {
		if got := c.kind.Retryable(); got != c.want {
			t.Errorf("%s.Retryable() = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestErrorMessageFormat(t *testing.T) {
	err := New(Validation, "value out of range").WithPLC("P1").WithTag("TEMP")
	got := err.Error()
	want := "ValidationError[P1/TEMP]: value out of range"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(Connection, cause, "connect to P1")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if got := err.Error(); got == "" {
		t.Error("expected non-empty error message")
	}
}

func TestOfAndIs(t *testing.T) {
	err := New(Timeout, "deadline exceeded")
	if Of(err) != Timeout {
		t.Errorf("Of(err) = %v, want Timeout", Of(err))
	}
	if !Is(err, Timeout) {
		t.Error("expected Is(err, Timeout) to be true")
	}
	if Is(err, Connection) {
		t.Error("expected Is(err, Connection) to be false")
	}

	plain := errors.New("not a gateway error")
	if Of(plain) != Unknown {
		t.Errorf("Of(plain) = %v, want Unknown", Of(plain))
	}
}

func TestWithAddressPreservesOtherFields(t *testing.T) {
	base := New(AddressResolution, "tag not found").WithPLC("P1").WithTag("TEMP")
	withAddr := base.WithAddress(40101)

	if withAddr.PLCID != "P1" || withAddr.TagName != "TEMP" || withAddr.Address != 40101 {
		t.Errorf("WithAddress dropped fields: %+v", withAddr)
	}
	if base.Address != 0 {
		t.Error("WithAddress should not mutate the receiver")
	}
}
