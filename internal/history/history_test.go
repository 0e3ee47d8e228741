package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/tapvox/pkg/provider/llm"
)

func TestNew_PrimingPair(t *testing.T) {
	t.Parallel()

	h := New("Eres un asistente.", "Entendido.", 24)
	got := h.Snapshot()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != (llm.Message{Role: llm.RoleUser, Content: "Eres un asistente."}) {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1] != (llm.Message{Role: llm.RoleAssistant, Content: "Entendido."}) {
		t.Errorf("entry 1 = %+v", got[1])
	}
}

func TestAppend_EvictsOldestPair(t *testing.T) {
	t.Parallel()

	h := New("prime", "ack", 24)
	for i := range 23 {
		h.Append(llm.RoleUser, fmt.Sprintf("u%d", i))
		h.Append(llm.RoleAssistant, fmt.Sprintf("a%d", i))
	}
	if h.Len() != 48 {
		t.Fatalf("len = %d, want 48", h.Len())
	}

	h.Append(llm.RoleUser, "new")
	got := h.Snapshot()
	if len(got) != 47 {
		t.Fatalf("len = %d, want 47 after evicting one pair", len(got))
	}
	if got[0].Content != "prime" || got[1].Content != "ack" {
		t.Errorf("priming pair evicted: %+v %+v", got[0], got[1])
	}
	if got[2].Content != "u1" || got[3].Content != "a1" {
		t.Errorf("oldest pair not evicted first: %+v %+v", got[2], got[3])
	}
	if last := got[len(got)-1]; last.Content != "new" {
		t.Errorf("newest turn = %+v", last)
	}
}

func TestAppend_NeverExceedsCap(t *testing.T) {
	t.Parallel()

	h := New("prime", "ack", 3)
	for i := range 50 {
		role := llm.RoleUser
		if i%3 == 1 {
			role = llm.RoleAssistant
		}
		h.Append(role, fmt.Sprint(i))
		if h.Len() > 6 {
			t.Fatalf("after %d appends len = %d, exceeds 6", i+1, h.Len())
		}
		got := h.Snapshot()
		if got[0].Content != "prime" || got[1].Content != "ack" {
			t.Fatalf("priming pair lost after %d appends", i+1)
		}
		if got[len(got)-1].Content != fmt.Sprint(i) {
			t.Fatalf("newest turn evicted after %d appends", i+1)
		}
	}
}

func TestAppend_FailedTurnEvictedAlone(t *testing.T) {
	t.Parallel()

	h := New("prime", "ack", 2)
	h.Append(llm.RoleUser, "sin respuesta")
	h.Append(llm.RoleUser, "hola")
	h.Append(llm.RoleAssistant, "buenas")

	got := h.Snapshot()
	want := []string{"prime", "ack", "hola", "buenas"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("entry %d = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestNew_ClampsCapacity(t *testing.T) {
	t.Parallel()

	h := New("p", "a", 0)
	if h.MaxPairs() != MinPairs {
		t.Errorf("MaxPairs = %d, want %d", h.MaxPairs(), MinPairs)
	}
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	h := New("p", "a", 5)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Append(llm.RoleUser, fmt.Sprint(i))
			_ = h.Snapshot()
		}()
	}
	wg.Wait()
	if h.Len() > 10 {
		t.Errorf("len = %d exceeds cap", h.Len())
	}
}
