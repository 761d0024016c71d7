package signal

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	l := New(zap.NewNop())
	a := l.Info(1, "first")
	b := l.Success(2, "second")
	if b.Seq <= a.Seq {
		t.Fatalf("expected increasing seq, got %d then %d", a.Seq, b.Seq)
	}
}

func TestTailTruncatesAtRingCapacity(t *testing.T) {
	l := New(zap.NewNop())
	for i := 0; i < ringCapacity+10; i++ {
		l.Info(int64(i), "entry")
	}
	tail := l.Tail()
	if len(tail) != ringCapacity {
		t.Fatalf("expected %d entries, got %d", ringCapacity, len(tail))
	}
	if tail[0].Message != "entry" {
		t.Fatalf("unexpected oldest retained entry: %+v", tail[0])
	}
}

func TestSubscribeReceivesNewEntries(t *testing.T) {
	l := New(zap.NewNop())
	ch, unsubscribe := l.Subscribe()
	defer unsubscribe()

	l.Error(time.Now().UnixMilli(), "boom")

	select {
	case e := <-ch:
		if e.Type != TypeError || e.Message != "boom" {
			t.Fatalf("unexpected entry: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber entry")
	}
}

func TestUnsubscribeStopsFanout(t *testing.T) {
	l := New(zap.NewNop())
	ch, unsubscribe := l.Subscribe()
	unsubscribe()

	l.Info(time.Now().UnixMilli(), "after unsubscribe")

	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel, got entry %+v", e)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected channel to be closed immediately on unsubscribe")
	}
}
