package bus

import (
	"context"
	"errors"
	"testing"
)

func TestLocal_PrefixMatching(t *testing.T) {
	b := NewLocal(nil)
	var got []string

	b.Subscribe("anoncreds.revocation.", func(ctx context.Context, profileID string, ev Event) error {
		got = append(got, ev.Topic)
		return nil
	})
	b.Subscribe("anoncreds.credential.", func(ctx context.Context, profileID string, ev Event) error {
		t.Errorf("unexpected delivery to credential subscriber: %s", ev.Topic)
		return nil
	})

	ctx := context.Background()
	_ = b.Notify(ctx, "tenant-1", Event{Topic: "anoncreds.revocation.registry_definition.create"})
	_ = b.Notify(ctx, "tenant-1", Event{Topic: "didcomm.message.received"})

	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
}

func TestLocal_HandlerErrorIsolated(t *testing.T) {
	b := NewLocal(nil)
	delivered := false

	b.Subscribe("a.", func(ctx context.Context, profileID string, ev Event) error {
		return errors.New("boom")
	})
	b.Subscribe("a.", func(ctx context.Context, profileID string, ev Event) error {
		delivered = true
		return nil
	})

	if err := b.Notify(context.Background(), "tenant-1", Event{Topic: "a.b"}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if !delivered {
		t.Error("second handler should still run after first fails")
	}
}
