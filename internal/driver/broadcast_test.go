package driver

import "testing"

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(1)
	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	b.Publish(Frame{Seq: 1})
	if got := (<-first).Seq; got != 1 {
		t.Fatalf("expected seq 1, got %d", got)
	}
	//1.- The second subscriber has not drained, so the next frame is dropped for it.
	b.Publish(Frame{Seq: 2})
	if b.Dropped() != 1 {
		t.Fatalf("expected one drop, got %d", b.Dropped())
	}
	if got := (<-second).Seq; got != 1 {
		t.Fatalf("expected slow subscriber to keep seq 1, got %d", got)
	}

	cancelFirst()
	cancelFirst()
	if _, ok := <-first; ok {
		// A buffered frame may still be pending; the channel must close after it.
		if _, ok := <-first; ok {
			t.Fatal("expected closed channel after cancel")
		}
	}
	if b.Subscribers() != 1 {
		t.Fatalf("expected one subscriber, got %d", b.Subscribers())
	}
}
