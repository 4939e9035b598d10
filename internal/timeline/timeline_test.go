package timeline

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/ordering"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func msg(id, sender string, offset time.Duration) model.Message {
	return model.Message{ID: id, ChatID: "c", SenderID: sender, ContentType: model.Text, Timestamp: base.Add(offset)}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestInsertOutOfOrderAndDuplicates(t *testing.T) {
	tl := New(nil)
	tl.Insert(msg("m3", "a", 3*time.Minute))
	tl.Insert(msg("m1", "a", time.Minute))
	tl.Insert(msg("m2a", "b", 2*time.Minute))
	tl.Insert(msg("m2b", "a", 2*time.Minute))

	dup := msg("m1", "a", time.Minute)
	dup.ReadBy = []string{"b"}
	if _, inserted := tl.Insert(dup); inserted {
		t.Error("duplicate id inserted twice")
	}

	got := ids(tl.Messages())
	want := []string{"m1", "m2a", "m2b", "m3"}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v", got, want)
		}
	}
	if m, _ := tl.Get("m1"); !m.ReadByUser("b") {
		t.Error("duplicate delivery should merge readers")
	}
}

func TestInsertRandomOrderStaysSorted(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tl := New(nil)
	for i := 0; i < 300; i++ {
		tl.Insert(msg(strconv.Itoa(i), "a", time.Duration(r.Intn(20))*time.Second))
	}
	msgs := tl.Messages()
	if len(msgs) != 300 {
		t.Fatalf("len = %d, want 300", len(msgs))
	}
	if !ordering.IsSorted(msgs, model.CompareMessages, ordering.Ascending) {
		t.Error("timeline not sorted ascending")
	}
}

func TestMarkRead(t *testing.T) {
	tl := New([]model.Message{msg("m1", "a", 0)})
	if !tl.MarkRead("m1", "me") {
		t.Fatal("MarkRead() = false, want true")
	}
	if tl.MarkRead("m1", "me") {
		t.Error("second MarkRead() = true, want false")
	}
	if tl.MarkRead("missing", "me") {
		t.Error("MarkRead(missing) = true")
	}
}

func TestDisplayRules(t *testing.T) {
	tests := []struct {
		name          string
		msgs          []model.Message
		wantHeader    bool
		wantTimestamp bool
	}{
		{
			name:       "same sender five minutes later",
			msgs:       []model.Message{msg("1", "a", 0), msg("2", "a", 5*time.Minute)},
			wantHeader: false, wantTimestamp: false,
		},
		{
			name:       "same sender eleven minutes later",
			msgs:       []model.Message{msg("1", "a", 0), msg("2", "a", 11*time.Minute)},
			wantHeader: true, wantTimestamp: true,
		},
		{
			name:       "different sender same time",
			msgs:       []model.Message{msg("1", "a", 0), msg("2", "b", 0)},
			wantHeader: true, wantTimestamp: false,
		},
		{
			name:       "exactly ten minutes is not a gap",
			msgs:       []model.Message{msg("1", "a", 0), msg("2", "a", 10*time.Minute)},
			wantHeader: false, wantTimestamp: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !ShowsHeader(tt.msgs, 0) || !ShowsTimestamp(tt.msgs, 0) {
				t.Error("first message must show header and timestamp")
			}
			if got := ShowsHeader(tt.msgs, 1); got != tt.wantHeader {
				t.Errorf("ShowsHeader = %v, want %v", got, tt.wantHeader)
			}
			if got := ShowsTimestamp(tt.msgs, 1); got != tt.wantTimestamp {
				t.Errorf("ShowsTimestamp = %v, want %v", got, tt.wantTimestamp)
			}
		})
	}
}

func TestEntries(t *testing.T) {
	entries := Entries([]model.Message{msg("1", "a", 0), msg("2", "a", time.Minute), msg("3", "b", 2*time.Minute)})
	if len(entries) != 3 {
		t.Fatalf("len = %d", len(entries))
	}
	if entries[1].ShowHeader || !entries[2].ShowHeader {
		t.Errorf("headers = %v %v %v", entries[0].ShowHeader, entries[1].ShowHeader, entries[2].ShowHeader)
	}
}
