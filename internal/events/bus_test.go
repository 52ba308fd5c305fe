package events

import (
	"testing"

	"github.com/pitabwire/cardforge/model"
)

func TestBus_Publish_reachesSubscribers(t *testing.T) {
	b := NewBus(4)
	a, cancelA := b.Subscribe()
	defer cancelA()
	c, cancelC := b.Subscribe()
	defer cancelC()

	b.Publish(model.Event{Type: model.EventSaved, Collection: model.Cards})

	for _, ch := range []<-chan model.Event{a, c} {
		ev := <-ch
		if ev.Type != model.EventSaved {
			t.Errorf("Type = %q, want %q", ev.Type, model.EventSaved)
		}
	}
}

func TestBus_Publish_fullQueueDrops(t *testing.T) {
	b := NewBus(1)
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(model.Event{Type: model.EventSaved})
	b.Publish(model.Event{Type: model.EventReloaded})

	if got := b.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
	if ev := <-ch; ev.Type != model.EventSaved {
		t.Errorf("Type = %q, want first event", ev.Type)
	}
}

func TestBus_Subscribe_cancelClosesAndUnsubscribes(t *testing.T) {
	b := NewBus(0)
	ch, cancel := b.Subscribe()
	if b.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", b.Subscribers())
	}

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if b.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", b.Subscribers())
	}
	b.Publish(model.Event{Type: model.EventSaved})
}
