// Package logring keeps a bounded, ordered log of recent relayed transactions
// for display.
package logring

import (
	"net/http"
	"sync"
	"time"

	"hop.computer/passage/common"
	"hop.computer/passage/pkg/list"
	"hop.computer/passage/pkg/waiter"
)

// Record is one relayed transaction. A StatusCode of zero marks a request
// that has started but not completed.
type Record struct {
	ID            string        `json:"id"`
	Connection    string        `json:"connection"`
	Method        string        `json:"method"`
	Path          string        `json:"path"`
	StatusCode    int           `json:"statusCode"`
	StatusText    string        `json:"statusText"`
	ContentLength int64         `json:"contentLength"`
	Data          string        `json:"data,omitempty"`
	Truncated     bool          `json:"truncated,omitempty"`
	Header        http.Header   `json:"headers,omitempty"`
	Started       time.Time     `json:"started"`
	Duration      time.Duration `json:"duration"`
}

// Pending returns true if the request has not completed yet.
func (r *Record) Pending() bool {
	return r.StatusCode == 0
}

// Snapshot is a consistent copy of the ring for rendering.
type Snapshot struct {
	Header  []string `json:"header,omitempty"`
	Records []Record `json:"records"`
	Footer  []string `json:"footer,omitempty"`
}

// Ring holds at most Capacity records in insertion order. It is safe for
// concurrent use.
type Ring struct {
	m        sync.Mutex
	records  list.List[Record]
	capacity int
	header   []string
	footer   []string

	changed waiter.Queue[Ring]
}

// Options configure a Ring.
type Options struct {
	Capacity int
	Header   []string
	Footer   []string
}

// New returns an empty ring. A non-positive capacity uses
// common.DefaultMaxLogs.
func New(opts Options) *Ring {
	c := opts.Capacity
	if c <= 0 {
		c = common.DefaultMaxLogs
	}
	return &Ring{
		capacity: c,
		header:   append([]string(nil), opts.Header...),
		footer:   append([]string(nil), opts.Footer...),
	}
}

// Capacity returns the maximum number of records kept.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Len returns the number of records currently held.
func (r *Ring) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.records.Len()
}

// Record inserts rec and returns the record that was stored.
//
// A record with an empty ID is always appended. A record whose ID is already
// present replaces it in place. A 304 record is replaced by a copy of the
// most recent completed record with the same path, keeping the 304's ID and
// timing. If no such record exists the 304 record is stored as is. The oldest
// records are evicted once the ring is over capacity.
func (r *Ring) Record(rec Record) Record {
	r.m.Lock()
	stored := r.record(rec)
	r.m.Unlock()

	r.changed.Notify()
	return stored
}

func (r *Ring) record(rec Record) Record {
	if rec.StatusCode == http.StatusNotModified {
		if last := r.lastWithPath(rec.Path, rec.ID); last != nil {
			replay := *last
			replay.ID = rec.ID
			replay.Started = rec.Started
			replay.Duration = rec.Duration
			rec = replay
		}
	}
	stored := copyRecord(rec)
	if rec.ID != "" {
		if n := r.find(rec.ID); n != nil {
			n.Set(stored)
			return *stored
		}
	}
	r.records.PushBack(stored)
	for r.records.Len() > r.capacity {
		r.records.PopFront()
	}
	return *stored
}

func (r *Ring) find(id string) *list.Node[Record] {
	for it := r.records.BackIter(); it != nil; it = it.Prev() {
		if it.Element().ID == id {
			return it
		}
	}
	return nil
}

func (r *Ring) lastWithPath(path, excludeID string) *Record {
	for it := r.records.BackIter(); it != nil; it = it.Prev() {
		e := it.Element()
		if e.Path != path || e.Pending() {
			continue
		}
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		return e
	}
	return nil
}

func copyRecord(rec Record) *Record {
	out := rec
	if rec.Header != nil {
		out.Header = rec.Header.Clone()
	}
	return &out
}

// Snapshot returns a copy of the records, oldest first, with the configured
// caption lines.
func (r *Ring) Snapshot() Snapshot {
	r.m.Lock()
	defer r.m.Unlock()
	s := Snapshot{
		Header:  append([]string(nil), r.header...),
		Records: make([]Record, 0, r.records.Len()),
		Footer:  append([]string(nil), r.footer...),
	}
	for it := r.records.FrontIter(); it != nil; it = it.Next() {
		s.Records = append(s.Records, *copyRecord(*it.Element()))
	}
	return s
}

// Subscribe delivers a notification on c after every change. Notifications
// are coalesced, so c should have a buffer of one. The returned function
// removes the subscription.
func (r *Ring) Subscribe(c chan *Ring) func() {
	e := waiter.NewCoalescingEntry(r, c)
	r.changed.EventRegister(e)
	return func() {
		r.changed.EventUnregister(e)
	}
}
