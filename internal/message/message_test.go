package message

import (
	"context"
	"sync"
	"testing"
)

func TestLog_RecordsInOrder(t *testing.T) {
	l := NewLog(nil)
	ctx := context.Background()

	l.Status(ctx, "Processing Home (Revision: 10)")
	l.Warn(ctx, "Quant error: 500")
	l.Error(ctx, "Finished with an error.")

	got := l.Messages()
	want := []Message{
		{LevelStatus, "Processing Home (Revision: 10)"},
		{LevelWarning, "Quant error: 500"},
		{LevelError, "Finished with an error."},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if l.Count(LevelWarning) != 1 {
		t.Fatalf("warnings = %d", l.Count(LevelWarning))
	}
}

func TestLog_MessagesIsACopy(t *testing.T) {
	l := NewLog(nil)
	l.Warn(context.Background(), "a")
	got := l.Messages()
	got[0].Text = "mutated"
	if l.Messages()[0].Text != "a" {
		t.Fatal("Messages should return a copy")
	}
}

func TestLog_Concurrent(t *testing.T) {
	l := NewLog(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Warn(context.Background(), "w")
		}()
	}
	wg.Wait()
	if l.Count(LevelWarning) != 50 {
		t.Fatalf("warnings = %d, want 50", l.Count(LevelWarning))
	}
}
