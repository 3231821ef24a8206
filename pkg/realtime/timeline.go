package realtime

import "sync"

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryConfirmed EntryStatus = "confirmed"
	EntryFailed    EntryStatus = "failed"
)

// Entry is one message in a Timeline. Message.ID is empty while pending.
type Entry struct {
	TempID  string
	Message Message
	Status  EntryStatus
}

// Timeline reconciles optimistic sends with the Confirmed and Created broadcasts
// for one chat. The two broadcasts may arrive in either order and either may be
// repeated; every canonical message ends up in exactly one entry.
type Timeline struct {
	mu      sync.Mutex
	entries []*Entry
	byTemp  map[string]*Entry
	byID    map[string]*Entry
}

func NewTimeline() *Timeline {
	return &Timeline{
		byTemp: make(map[string]*Entry),
		byID:   make(map[string]*Entry),
	}
}

// AddPending appends an optimistic entry. It returns false if tempID is empty or
// already known.
func (t *Timeline) AddPending(tempID string, msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tempID == "" {
		return false
	}
	if _, ok := t.byTemp[tempID]; ok {
		return false
	}
	msg.ID = ""
	e := &Entry{TempID: tempID, Message: msg, Status: EntryPending}
	t.entries = append(t.entries, e)
	t.byTemp[tempID] = e
	return true
}

// ApplyConfirmed resolves the optimistic entry for ev.TempID. It reports whether
// the visible timeline changed.
func (t *Timeline) ApplyConfirmed(ev MessageConfirmed) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	pending := t.byTemp[ev.TempID]
	canonical := t.byID[ev.Message.ID]

	switch {
	case canonical == nil && pending == nil:
		// Sent from another device.
		e := &Entry{TempID: ev.TempID, Message: ev.Message, Status: EntryConfirmed}
		t.entries = append(t.entries, e)
		t.byID[ev.Message.ID] = e
		if ev.TempID != "" {
			t.byTemp[ev.TempID] = e
		}
		return true
	case canonical == nil:
		pending.Message = ev.Message
		pending.Status = EntryConfirmed
		t.byID[ev.Message.ID] = pending
		return true
	case pending == nil:
		// Created came first with no optimistic entry to fold.
		if canonical.TempID == "" && ev.TempID != "" {
			canonical.TempID = ev.TempID
			t.byTemp[ev.TempID] = canonical
		}
		return false
	case pending != canonical:
		// Created came first: fold the optimistic entry into the canonical one.
		canonical.TempID = ev.TempID
		t.byTemp[ev.TempID] = canonical
		t.remove(pending)
		return true
	}
	return false
}

// ApplyCreated adds a canonical message unless it is already present.
func (t *Timeline) ApplyCreated(ev MessageCreated) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.Message.ID == "" {
		return false
	}
	if _, ok := t.byID[ev.Message.ID]; ok {
		return false
	}
	e := &Entry{Message: ev.Message, Status: EntryConfirmed}
	t.entries = append(t.entries, e)
	t.byID[ev.Message.ID] = e
	return true
}

// MarkFailed flags a still-pending entry, e.g. after an application timeout.
func (t *Timeline) MarkFailed(tempID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byTemp[tempID]
	if !ok || e.Status != EntryPending {
		return false
	}
	e.Status = EntryFailed
	return true
}

// Entries returns a snapshot in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = *e
	}
	return out
}

func (t *Timeline) remove(target *Entry) {
	for i, e := range t.entries {
		if e == target {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}
