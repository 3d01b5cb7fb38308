package ledger

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

const testTemplate = TemplateID("Quickstart.Licensing:License")

func registerReplace(l *InMemory) {
	// Test choice: replace the contract with one successor carrying the
	// choice argument as its payload.
	l.RegisterChoice(testTemplate, "Replace", func(c ActiveContract, arg json.RawMessage) ([]json.RawMessage, json.RawMessage, error) {
		return []json.RawMessage{arg}, json.RawMessage(`"ok"`), nil
	})
}

func TestCreateAndFetch(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	client := l.ForParty("provider")

	res := client.Create(ctx, testTemplate, json.RawMessage(`{"v":1}`))
	if !res.IsOk() {
		t.Fatalf("create: %v", res.Err())
	}

	fetched := client.Fetch(ctx, testTemplate, res.Value())
	if !fetched.IsOk() || fetched.Value() == nil {
		t.Fatalf("fetch after create: %+v", fetched)
	}
	if string(fetched.Value().Payload) != `{"v":1}` {
		t.Fatalf("payload = %s", fetched.Value().Payload)
	}
}

func TestFetchInvisibleToStrangers(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	id := l.ForParty("provider").Create(ctx, testTemplate, json.RawMessage(`{}`)).Value()

	res := l.ForParty("someone-else").Fetch(ctx, testTemplate, id)
	if !res.IsOk() {
		t.Fatalf("fetch: %v", res.Err())
	}
	if res.Value() != nil {
		t.Fatal("non-stakeholder must not see the contract")
	}
}

func TestExerciseArchivesAndCreatesSuccessor(t *testing.T) {
	l := NewInMemory()
	registerReplace(l)
	ctx := context.Background()
	client := l.ForParty("provider")

	id := client.Create(ctx, testTemplate, json.RawMessage(`{"v":1}`)).Value()

	res := client.Exercise(ctx, testTemplate, "Replace", id, json.RawMessage(`{"v":2}`))
	if !res.IsOk() {
		t.Fatalf("exercise: %v", res.Err())
	}
	succ, ok := res.Value().FirstCreated(testTemplate)
	if !ok {
		t.Fatal("no successor created")
	}
	if string(succ.Payload) != `{"v":2}` {
		t.Fatalf("successor payload = %s", succ.Payload)
	}

	// Old contract is archived: point lookup yields absence, not error.
	if got := client.Fetch(ctx, testTemplate, id); !got.IsOk() || got.Value() != nil {
		t.Fatalf("archived contract still visible: %+v", got)
	}
	// Second exercise on the archived contract is a ledger rejection.
	if got := client.Exercise(ctx, testTemplate, "Replace", id, nil); got.IsOk() {
		t.Fatal("exercise on archived contract must fail")
	}
}

func TestExerciseByNonStakeholderRejected(t *testing.T) {
	l := NewInMemory()
	registerReplace(l)
	ctx := context.Background()

	id := l.ForParty("provider").Create(ctx, testTemplate, json.RawMessage(`{}`)).Value()

	res := l.ForParty("intruder").Exercise(ctx, testTemplate, "Replace", id, nil)
	if res.IsOk() {
		t.Fatal("expected rejection")
	}
	if res.Err().Status != 403 {
		t.Fatalf("status = %d", res.Err().Status)
	}
}

func TestQueryReturnsOnlyActiveVisible(t *testing.T) {
	l := NewInMemory()
	registerReplace(l)
	ctx := context.Background()
	client := l.ForParty("provider")

	a := client.Create(ctx, testTemplate, json.RawMessage(`{"n":"a"}`)).Value()
	client.Create(ctx, testTemplate, json.RawMessage(`{"n":"b"}`))
	client.Exercise(ctx, testTemplate, "Replace", a, json.RawMessage(`{"n":"a2"}`))

	res := client.Query(ctx, testTemplate)
	if !res.IsOk() {
		t.Fatalf("query: %v", res.Err())
	}
	if len(res.Value()) != 2 {
		t.Fatalf("active contracts = %d, want 2", len(res.Value()))
	}
}

func TestCreatedHookObservesSuccessors(t *testing.T) {
	l := NewInMemory()
	registerReplace(l)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []ContractID
	l.OnCreated(func(c ActiveContract) {
		mu.Lock()
		seen = append(seen, c.ContractID)
		mu.Unlock()
	})

	client := l.ForParty("provider")
	id := client.Create(ctx, testTemplate, json.RawMessage(`{}`)).Value()
	client.Exercise(ctx, testTemplate, "Replace", id, json.RawMessage(`{}`))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("hook saw %d creates, want 2", len(seen))
	}
}
