package a2a

import (
	"testing"

	"github.com/ent0n29/synthwave/internal/protocol"
)

func TestThreadKeepsOnlyThePair(t *testing.T) {
	msgs := []protocol.Message{
		{ID: 1, SenderID: 1, ReceiverID: 2, Content: "a->b"},
		{ID: 2, SenderID: 3, ReceiverID: 1, Content: "c->a"},
		{ID: 3, SenderID: 2, ReceiverID: 1, Content: "b->a"},
		{ID: 4, SenderID: 2, ReceiverID: 3, Content: "b->c"},
	}
	got := Thread(msgs, 1, 2)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("Thread() = %+v, want ids [1 3]", got)
	}
}

func TestPeersExcludesCurrent(t *testing.T) {
	agents := []protocol.Agent{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}}
	if got := Peers(agents, 2); len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("Peers(2) = %+v", got)
	}
	if got := Peers(agents, 0); len(got) != 3 {
		t.Fatalf("Peers(0) len = %d, want 3", len(got))
	}
}

func TestStatusTone(t *testing.T) {
	cases := map[string]Tone{
		protocol.AgentOnline:  ToneOnline,
		protocol.AgentBusy:    ToneBusy,
		protocol.AgentOffline: ToneOffline,
		"away":                ToneOffline,
		"":                    ToneOffline,
	}
	for status, want := range cases {
		if got := StatusTone(status); got != want {
			t.Fatalf("StatusTone(%q) = %v, want %v", status, got, want)
		}
	}
}
