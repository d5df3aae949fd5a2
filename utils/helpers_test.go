package utils

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := CheckPassword("s3cret-pass", hash); err != nil {
		t.Errorf("CheckPassword rejected the correct password: %v", err)
	}
	if err := CheckPassword("wrong", hash); err == nil {
		t.Error("CheckPassword accepted a wrong password")
	}
}

func TestGenerateRandomString(t *testing.T) {
	first, err := GenerateRandomString(16)
	if err != nil {
		t.Fatalf("GenerateRandomString returned error: %v", err)
	}
	if len(first) != 16 {
		t.Errorf("length = %d, want 16", len(first))
	}
	second, err := GenerateRandomString(16)
	if err != nil {
		t.Fatalf("GenerateRandomString returned error: %v", err)
	}
	if first == second {
		t.Error("two generated strings should differ")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{"owner", "admin", "instructor", "student"} {
		if !IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"teacher", "root", "", "Admin"} {
		if IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = true, want false", role)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{input: "  alice  ", want: "alice"},
		{input: "bob\x00smith", want: "bobsmith"},
		{input: "\x00  ", want: ""},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.input); got != tc.want {
			t.Errorf("SanitizeString(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
