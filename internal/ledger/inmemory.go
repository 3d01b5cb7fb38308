package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"licentia.dev/internal/domain"
)

// ChoiceHandler applies a choice to a contract, returning the successor
// payloads (same template, inherited stakeholders) and the choice's result.
type ChoiceHandler func(contract ActiveContract, argument json.RawMessage) (successors []json.RawMessage, result json.RawMessage, err error)

// CreatedHook observes every contract the ledger accepts. Used to feed an
// in-memory read-model in tests and dev mode.
type CreatedHook func(contract ActiveContract)

// ArchivedHook observes contract archival (choice exercised).
type ArchivedHook func(id ContractID)

// InMemory is a process-local ledger used by tests and by dev mode. It
// reproduces the semantics the orchestration layer relies on: immutable
// contracts, atomic choice exercise with archival, per-party visibility.
type InMemory struct {
	mu        sync.RWMutex
	contracts map[ContractID]*contractRecord
	choices   map[string]ChoiceHandler
	onCreated []CreatedHook
	onArchive []ArchivedHook
}

type contractRecord struct {
	contract ActiveContract
	archived bool
}

// NewInMemory creates an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		contracts: make(map[ContractID]*contractRecord),
		choices:   make(map[string]ChoiceHandler),
	}
}

// RegisterChoice installs the handler for (template, choice). Exercising an
// unregistered choice is a ledger rejection.
func (l *InMemory) RegisterChoice(template TemplateID, choice string, h ChoiceHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.choices[choiceKey(template, choice)] = h
}

// OnCreated registers a hook invoked (synchronously, outside the lock) for
// every accepted create, including successors from choice exercise.
func (l *InMemory) OnCreated(h CreatedHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCreated = append(l.onCreated, h)
}

// OnArchived registers a hook invoked for every archived contract.
func (l *InMemory) OnArchived(h ArchivedHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onArchive = append(l.onArchive, h)
}

// ForParty returns a Client acting on behalf of the given party.
func (l *InMemory) ForParty(party string) Client {
	return &partyView{ledger: l, party: party}
}

func choiceKey(template TemplateID, choice string) string {
	return string(template) + "#" + choice
}

type partyView struct {
	ledger *InMemory
	party  string
}

var _ Client = (*partyView)(nil)

func (v *partyView) Create(ctx context.Context, template TemplateID, payload json.RawMessage) domain.Result[ContractID] {
	if err := ctx.Err(); err != nil {
		return domain.Err[ContractID](domain.Ledger("create aborted", err))
	}
	contract := ActiveContract{
		ContractID:  ContractID(uuid.NewString()),
		TemplateID:  template,
		Payload:     payload,
		Signatories: []string{v.party},
		CreatedAt:   time.Now().UTC(),
	}

	v.ledger.mu.Lock()
	v.ledger.contracts[contract.ContractID] = &contractRecord{contract: contract}
	hooks := append([]CreatedHook(nil), v.ledger.onCreated...)
	v.ledger.mu.Unlock()

	for _, h := range hooks {
		h(contract)
	}
	return domain.Ok(contract.ContractID)
}

func (v *partyView) Exercise(ctx context.Context, template TemplateID, choice string, id ContractID, argument json.RawMessage) domain.Result[ExerciseResult] {
	if err := ctx.Err(); err != nil {
		return domain.Err[ExerciseResult](domain.Ledger("exercise aborted", err))
	}

	v.ledger.mu.Lock()
	rec, ok := v.ledger.contracts[id]
	if !ok || rec.archived || rec.contract.TemplateID != template {
		v.ledger.mu.Unlock()
		return domain.Err[ExerciseResult](domain.LedgerNotFound(string(id)))
	}
	if !stakeholder(rec.contract, v.party) {
		v.ledger.mu.Unlock()
		return domain.Err[ExerciseResult](domain.LedgerUnauthorized(
			fmt.Sprintf("party %s is not a stakeholder of %s", v.party, id)))
	}
	handler, ok := v.ledger.choices[choiceKey(template, choice)]
	if !ok {
		v.ledger.mu.Unlock()
		return domain.Err[ExerciseResult](domain.Ledger(
			fmt.Sprintf("choice %s not defined on %s", choice, template), nil))
	}

	successors, result, err := handler(rec.contract, argument)
	if err != nil {
		v.ledger.mu.Unlock()
		return domain.Err[ExerciseResult](domain.Ledger("choice rejected", err))
	}

	// Atomic: archive target, create successors, all under one lock.
	rec.archived = true
	out := ExerciseResult{Value: result}
	for _, payload := range successors {
		succ := ActiveContract{
			ContractID:  ContractID(uuid.NewString()),
			TemplateID:  rec.contract.TemplateID,
			Payload:     payload,
			Signatories: append([]string(nil), rec.contract.Signatories...),
			Observers:   append([]string(nil), rec.contract.Observers...),
			CreatedAt:   time.Now().UTC(),
		}
		v.ledger.contracts[succ.ContractID] = &contractRecord{contract: succ}
		out.Created = append(out.Created, succ)
	}
	created := append([]CreatedHook(nil), v.ledger.onCreated...)
	archived := append([]ArchivedHook(nil), v.ledger.onArchive...)
	v.ledger.mu.Unlock()

	for _, h := range archived {
		h(id)
	}
	for _, succ := range out.Created {
		for _, h := range created {
			h(succ)
		}
	}
	return domain.Ok(out)
}

func (v *partyView) Query(ctx context.Context, template TemplateID) domain.Result[[]ActiveContract] {
	if err := ctx.Err(); err != nil {
		return domain.Err[[]ActiveContract](domain.Ledger("query aborted", err))
	}
	v.ledger.mu.RLock()
	defer v.ledger.mu.RUnlock()

	var out []ActiveContract
	for _, rec := range v.ledger.contracts {
		if rec.archived || rec.contract.TemplateID != template {
			continue
		}
		if !stakeholder(rec.contract, v.party) {
			continue
		}
		out = append(out, rec.contract)
	}
	return domain.Ok(out)
}

func (v *partyView) Fetch(ctx context.Context, template TemplateID, id ContractID) domain.Result[*ActiveContract] {
	if err := ctx.Err(); err != nil {
		return domain.Err[*ActiveContract](domain.Ledger("fetch aborted", err))
	}
	v.ledger.mu.RLock()
	defer v.ledger.mu.RUnlock()

	rec, ok := v.ledger.contracts[id]
	if !ok || rec.archived || rec.contract.TemplateID != template || !stakeholder(rec.contract, v.party) {
		return domain.Ok[*ActiveContract](nil)
	}
	c := rec.contract
	return domain.Ok(&c)
}

func stakeholder(c ActiveContract, party string) bool {
	for _, p := range c.Signatories {
		if p == party {
			return true
		}
	}
	for _, p := range c.Observers {
		if p == party {
			return true
		}
	}
	return false
}
