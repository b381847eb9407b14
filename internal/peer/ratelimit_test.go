package peer

import (
	"testing"
	"time"
)

func TestConnectRateLimiterBlocksAfterMax(t *testing.T) {
	rl := newConnectRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.allow("node-a") {
			t.Fatalf("attempt %d: expected allowed", i)
		}
	}
	if rl.allow("node-a") {
		t.Fatal("4th attempt: expected blocked")
	}
}

func TestConnectRateLimiterPerKey(t *testing.T) {
	rl := newConnectRateLimiter(1, time.Minute)

	if !rl.allow("node-a") {
		t.Fatal("node-a first attempt should be allowed")
	}
	if !rl.allow("node-b") {
		t.Fatal("node-b should be independent of node-a")
	}
	if rl.allow("node-a") {
		t.Fatal("node-a second attempt should be blocked")
	}
}

func TestConnectRateLimiterWindowExpiry(t *testing.T) {
	rl := newConnectRateLimiter(1, 20*time.Millisecond)

	if !rl.allow("node-a") {
		t.Fatal("first attempt should be allowed")
	}
	if rl.allow("node-a") {
		t.Fatal("second attempt inside window should be blocked")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.allow("node-a") {
		t.Fatal("attempt after window expiry should be allowed again")
	}
}
