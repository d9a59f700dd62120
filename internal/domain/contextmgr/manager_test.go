package contextmgr

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testKey = NamespaceAndName{Namespace: "Test", Name: "State"}

type asyncProvider struct {
	m     *Manager
	state string
}

func (p *asyncProvider) ProvideState(key NamespaceAndName, token uint64) {
	go p.m.SetState(key, p.state, RefreshAlways, token)
}

type silentProvider struct{}

func (silentProvider) ProvideState(NamespaceAndName, uint64) {}

func TestGetContextCollectsProviderState(t *testing.T) {
	m := NewManager(500 * time.Millisecond)
	m.SetStateProvider(testKey, &asyncProvider{m: m, state: `{"ok":true}`})

	entries, err := m.GetContext(context.Background())
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if string(entries[0].Payload) != `{"ok":true}` {
		t.Errorf("unexpected payload %s", entries[0].Payload)
	}
	if entries[0].Header != testKey {
		t.Errorf("unexpected header %v", entries[0].Header)
	}
}

func TestGetContextTimesOut(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	m.SetStateProvider(testKey, silentProvider{})

	if _, err := m.GetContext(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestSetStateRejectsUnknownAndInvalid(t *testing.T) {
	m := NewManager(time.Second)

	if err := m.SetState(testKey, `{}`, RefreshAlways, 0); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}

	m.SetStateProvider(testKey, silentProvider{})
	if err := m.SetState(testKey, `{not json`, RefreshAlways, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if err := m.SetState(testKey, `{}`, RefreshAlways, 42); !errors.Is(err, ErrTokenOutdated) {
		t.Errorf("expected ErrTokenOutdated, got %v", err)
	}
}

func TestUnsolicitedStateFiresOnChange(t *testing.T) {
	m := NewManager(time.Second)
	m.SetStateProvider(testKey, silentProvider{})

	var fired []NamespaceAndName
	m.OnChange(func(k NamespaceAndName) { fired = append(fired, k) })

	m.SetState(testKey, `{"a":1}`, RefreshNever, 0)
	m.SetState(testKey, `{"a":1}`, RefreshNever, 0)
	m.SetState(testKey, `{"a":2}`, RefreshNever, 0)

	if len(fired) != 2 {
		t.Errorf("expected 2 change notifications, got %d", len(fired))
	}

	// RefreshNever with cached state answers without asking the provider.
	entries, err := m.GetContext(context.Background())
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if len(entries) != 1 || string(entries[0].Payload) != `{"a":2}` {
		t.Errorf("unexpected entries %+v", entries)
	}
}
