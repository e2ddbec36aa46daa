package internal

import (
	"bytes"
	"strconv"
	"testing"
)

func TestNewPasscodeRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := NewPasscode(nil)
		if err != nil {
			t.Fatalf("NewPasscode: %v", err)
		}
		if !ValidPasscode(code) {
			t.Fatalf("invalid passcode shape %q", code)
		}
		n, _ := strconv.Atoi(code)
		if n < passcodeMin || n > passcodeMax {
			t.Fatalf("passcode %d out of range", n)
		}
	}
}

func TestNewPasscodeDeterministicSource(t *testing.T) {
	src := bytes.Repeat([]byte{0}, 8)
	a, err := NewPasscode(NewFixedReader(src))
	if err != nil {
		t.Fatalf("NewPasscode: %v", err)
	}
	b, err := NewPasscode(NewFixedReader(src))
	if err != nil {
		t.Fatalf("NewPasscode: %v", err)
	}
	if a != b || a != "100000" {
		t.Fatalf("expected reproducible lowest passcode, got %q and %q", a, b)
	}
}

func TestNewResetToken(t *testing.T) {
	token, err := NewResetToken(nil)
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	if len(token) != 64 || !ValidResetToken(token) {
		t.Fatalf("unexpected token %q", token)
	}

	fixed, err := NewResetToken(NewFixedReader(bytes.Repeat([]byte{0xab}, 32)))
	if err != nil {
		t.Fatalf("NewResetToken fixed: %v", err)
	}
	if fixed != string(bytes.Repeat([]byte("ab"), 32)) {
		t.Fatalf("unexpected fixed token %q", fixed)
	}

	if _, err := NewResetToken(NewFixedReader([]byte{1, 2, 3})); err == nil {
		t.Fatal("expected short source to fail")
	}
}

func TestValidators(t *testing.T) {
	for _, bad := range []string{"", "12345", "1234567", "12a456"} {
		if ValidPasscode(bad) {
			t.Fatalf("expected %q rejected", bad)
		}
	}
	for _, bad := range []string{"", "zz", string(bytes.Repeat([]byte("g"), 64))} {
		if ValidResetToken(bad) {
			t.Fatalf("expected %q rejected", bad)
		}
	}
}
