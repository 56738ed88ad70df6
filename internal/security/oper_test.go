package security

import "testing"

func TestHashAndCheckOperPassword(t *testing.T) {
	hash, err := HashOperPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashOperPassword: %v", err)
	}
	if !CheckOperPassword(hash, "correct horse battery staple") {
		t.Error("expected the correct password to verify")
	}
	if CheckOperPassword(hash, "wrong password") {
		t.Error("expected an incorrect password to fail verification")
	}
}
