package lease

import (
	"regexp"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	if got := Key("ec2_container_lock", "cronjobs"); got != "ec2_container_lock::cronjobs" {
		t.Errorf("Key() = %q", got)
	}
	if got := Key("", "cronjobs"); got != "cronjobs" {
		t.Errorf("Key() without prefix = %q", got)
	}
}

func TestLease_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := Lease{Key: "k", Owner: "a", AcquiredAt: now, TTL: 120 * time.Second}

	if !l.ExpiresAt().Equal(now.Add(120 * time.Second)) {
		t.Errorf("ExpiresAt() = %v", l.ExpiresAt())
	}
	if l.Expired(now.Add(119 * time.Second)) {
		t.Error("lease should be valid before its ttl elapses")
	}
	if !l.Expired(now.Add(130 * time.Second)) {
		t.Error("lease should be expired after its ttl elapses")
	}
}

func TestNewOwnerToken(t *testing.T) {
	a := NewOwnerToken()
	b := NewOwnerToken()

	if a == b {
		t.Errorf("tokens should be unique, both were %q", a)
	}
	if !regexp.MustCompile(`^[^\s:]+:\d+:[0-9a-f]{8}$`).MatchString(a) {
		t.Errorf("unexpected token format %q", a)
	}
	if err := ValidateString(a); err != nil {
		t.Errorf("token should be a valid lease string: %v", err)
	}
}
