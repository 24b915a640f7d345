package security

import (
	"testing"
	"time"
)

func TestUserTokenRoundTrip(t *testing.T) {
	token, err := IssueUserToken("test-secret", 42, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := ParseUserToken("test-secret", token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("expected user id 42, got %d", claims.UserID)
	}

	if _, err := ParseUserToken("wrong-secret", token); err == nil {
		t.Fatal("expected parse failure with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := IssueUserToken("test-secret", 42, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := ParseUserToken("test-secret", token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestAudienceSeparation(t *testing.T) {
	userToken, err := IssueUserToken("test-secret", 7, time.Hour)
	if err != nil {
		t.Fatalf("issue user token: %v", err)
	}
	if _, err := ParseAdminToken("test-secret", userToken); err == nil {
		t.Fatal("user token accepted on admin parse")
	}

	adminToken, err := IssueAdminToken("test-secret", 3, "root", time.Hour)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	claims, err := ParseAdminToken("test-secret", adminToken)
	if err != nil {
		t.Fatalf("parse admin token: %v", err)
	}
	if claims.AdminID != 3 || claims.Username != "root" {
		t.Fatalf("unexpected admin claims: %+v", claims)
	}
	if _, err := ParseUserToken("test-secret", adminToken); err == nil {
		t.Fatal("admin token accepted on user parse")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("wrong password verified")
	}
}
