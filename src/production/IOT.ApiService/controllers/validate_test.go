package controllers

import "testing"

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		ok       bool
	}{
		{name: "minimum length", username: "abcdef", ok: true},
		{name: "maximum length", username: "abcdefghijklmnopqrst", ok: true},
		{name: "too short", username: "abcde", ok: false},
		{name: "too long", username: "abcdefghijklmnopqrstu", ok: false},
		{name: "empty", username: "", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := validateUsername(tc.username); got != tc.ok {
				t.Fatalf("validateUsername(%q) = %v, want %v", tc.username, got, tc.ok)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		ok    bool
	}{
		{name: "simple", email: "a@b.com", ok: true},
		{name: "subdomain", email: "user_1@mail.example.com", ok: true},
		{name: "hyphens", email: "first-last@my-host.io", ok: true},
		{name: "no at", email: "nobody.example.com", ok: false},
		{name: "no tld", email: "a@b", ok: false},
		{name: "spaces", email: "a b@c.com", ok: false},
		{name: "empty", email: "", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := validateEmail(tc.email); got != tc.ok {
				t.Fatalf("validateEmail(%q) = %v, want %v", tc.email, got, tc.ok)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	if !validatePassword("secret1") {
		t.Fatal("expected 7-char password to be valid")
	}
	if validatePassword("short") {
		t.Fatal("expected 5-char password to be invalid")
	}
	if validatePassword("abcdefghijklmnopqrstu") {
		t.Fatal("expected 21-char password to be invalid")
	}
}
