package bus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/config"
)

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "journal.jsonl")

	journal, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("OpenJournal() error = %v", err)
	}
	defer journal.Close()

	start := time.Now().Add(-time.Second)
	for i, topic := range []string{TopicSystemCompleted, TopicSystemFailed, TopicExperimentCompleted} {
		event := NewEvent(topic, "test", "exp-1", map[string]any{"n": i})
		if err := journal.Append(topic, event); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	t.Run("all entries in order", func(t *testing.T) {
		entries, err := journal.Entries(start, 0)
		if err != nil {
			t.Fatalf("Entries() error = %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("len(entries) = %d, want 3", len(entries))
		}
		if entries[0].Topic != TopicSystemCompleted || entries[2].Topic != TopicExperimentCompleted {
			t.Errorf("topics = %s ... %s", entries[0].Topic, entries[2].Topic)
		}
		if entries[1].Event.CorrelationID != "exp-1" {
			t.Errorf("CorrelationID = %s, want exp-1", entries[1].Event.CorrelationID)
		}
	})

	t.Run("limit", func(t *testing.T) {
		entries, err := journal.Entries(start, 2)
		if err != nil {
			t.Fatalf("Entries() error = %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("len(entries) = %d, want 2", len(entries))
		}
	})

	t.Run("since filters", func(t *testing.T) {
		entries, err := journal.Entries(time.Now().Add(time.Hour), 0)
		if err != nil {
			t.Fatalf("Entries() error = %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("len(entries) = %d, want 0", len(entries))
		}
	})

	t.Run("malformed lines skipped", func(t *testing.T) {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			t.Fatal(err)
		}
		f.WriteString("not json\n")
		f.Close()

		entries, err := journal.Entries(start, 0)
		if err != nil {
			t.Fatalf("Entries() error = %v", err)
		}
		if len(entries) != 3 {
			t.Errorf("len(entries) = %d, want 3", len(entries))
		}
	})

	t.Run("replay", func(t *testing.T) {
		target := NewMemoryBus(nil)
		defer target.Close()

		var mu sync.Mutex
		var replayed []string
		var wg sync.WaitGroup
		for _, topic := range []string{TopicSystemCompleted, TopicSystemFailed, TopicExperimentCompleted} {
			target.Subscribe(context.Background(), topic, func(ctx context.Context, event Event) error {
				mu.Lock()
				replayed = append(replayed, event.Type)
				mu.Unlock()
				wg.Done()
				return nil
			})
		}

		wg.Add(3)
		if err := journal.Replay(context.Background(), target, start); err != nil {
			t.Fatalf("Replay() error = %v", err)
		}
		waitFor(t, &wg, time.Second)

		if len(replayed) != 3 {
			t.Errorf("replayed %d events, want 3", len(replayed))
		}
	})
}

func TestJournal_AppendAfterClose(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := journal.Append(TopicSystemCompleted, Event{}); err == nil {
		t.Error("Append() after Close() should error")
	}
}

func TestJournaledBus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	b, err := NewBus(config.BusConfig{Type: "memory", Journal: path}, nil)
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	jb, ok := b.(*JournaledBus)
	if !ok {
		t.Fatalf("NewBus() = %T, want *JournaledBus", b)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	jb.Subscribe(context.Background(), TopicSystemCompleted, func(ctx context.Context, event Event) error {
		wg.Done()
		return nil
	})

	if err := jb.Publish(context.Background(), TopicSystemCompleted, NewEvent(TopicSystemCompleted, "test", "", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitFor(t, &wg, time.Second)

	entries, err := jb.journal.Entries(time.Time{}, 0)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Topic != TopicSystemCompleted {
		t.Errorf("entries = %+v", entries)
	}

	if err := jb.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
