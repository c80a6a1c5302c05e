package cache

import (
	"testing"
	"time"
)

func TestLocal_SetGet(t *testing.T) {
	c := NewLocal()
	c.Set("k", "v", time.Minute)

	v, ok := c.Get("k")
	if !ok {
		t.Fatalf("expected key to be present")
	}
	if v.(string) != "v" {
		t.Errorf("expected value %q, got %q", "v", v)
	}
}

func TestLocal_Expiry(t *testing.T) {
	c := NewLocal()
	c.Set("k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected key to have expired")
	}
}

func TestLocal_Increment(t *testing.T) {
	c := NewLocal()
	if got := c.Increment("counter", 3, time.Minute); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := c.Increment("counter", 2, time.Minute); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestLocal_HitRatioTracksObservations(t *testing.T) {
	c := NewLocal()
	c.Set("k", "v", time.Minute)

	for i := 0; i < 5; i++ {
		c.Get("k")
	}
	c.Get("missing")

	stats := c.GetStats()
	if stats.HitRatio <= 0.5 {
		t.Errorf("expected hit ratio to remain high after mostly-hits, got %f", stats.HitRatio)
	}
}

func TestLocal_ConcurrentAccess(t *testing.T) {
	c := NewLocal()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(n int) {
			c.Set("k", n, time.Minute)
			c.Get("k")
			c.Increment("counter", 1, time.Minute)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
