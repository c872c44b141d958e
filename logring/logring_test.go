package logring

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"

	"hop.computer/passage/common"
)

func ids(s Snapshot) []string {
	out := make([]string, 0, len(s.Records))
	for _, r := range s.Records {
		out = append(out, r.ID)
	}
	return out
}

func TestDefaultCapacity(t *testing.T) {
	r := New(Options{})
	assert.Equal(t, common.DefaultMaxLogs, r.Capacity())
}

func TestEviction(t *testing.T) {
	r := New(Options{Capacity: 3})
	for i := 0; i < 5; i++ {
		r.Record(Record{ID: fmt.Sprintf("%d", i), Path: "/p", StatusCode: 200})
	}
	s := r.Snapshot()
	assert.DeepEqual(t, []string{"2", "3", "4"}, ids(s))
}

func TestUpsert(t *testing.T) {
	r := New(Options{Capacity: 5})
	r.Record(Record{ID: "a", Method: "GET", Path: "/svc/x"})
	r.Record(Record{ID: "b", Method: "GET", Path: "/svc/y"})
	r.Record(Record{ID: "a", Method: "GET", Path: "/svc/x", StatusCode: 200, StatusText: "OK"})

	s := r.Snapshot()
	assert.DeepEqual(t, []string{"a", "b"}, ids(s))
	assert.Check(t, is.Equal(200, s.Records[0].StatusCode))
	assert.Check(t, s.Records[1].Pending())
}

func TestEmptyIDAppends(t *testing.T) {
	r := New(Options{Capacity: 5})
	r.Record(Record{Path: "/a", StatusCode: 502})
	r.Record(Record{Path: "/a", StatusCode: 502})
	assert.Equal(t, 2, r.Len())
}

func TestNotModifiedReplay(t *testing.T) {
	r := New(Options{Capacity: 10})
	r.Record(Record{ID: "1", Path: "/svc/products", StatusCode: 200, StatusText: "OK", Data: `["a","b"]`})
	r.Record(Record{ID: "2", Path: "/svc/other", StatusCode: 200, Data: "other"})
	r.Record(Record{ID: "3", Path: "/svc/products", StatusCode: 200, StatusText: "OK", Data: `["a","b","c"]`})
	r.Record(Record{ID: "4", Path: "/svc/products"})

	stored := r.Record(Record{ID: "4", Path: "/svc/products", StatusCode: http.StatusNotModified, StatusText: "Not Modified"})
	assert.Equal(t, "4", stored.ID)
	assert.Equal(t, 200, stored.StatusCode)
	assert.Equal(t, `["a","b","c"]`, stored.Data)

	s := r.Snapshot()
	assert.DeepEqual(t, []string{"1", "2", "3", "4"}, ids(s))
	assert.Equal(t, `["a","b","c"]`, s.Records[3].Data)
}

func TestNotModifiedWithoutMatch(t *testing.T) {
	r := New(Options{Capacity: 10})
	r.Record(Record{ID: "1", Path: "/svc/other", StatusCode: 200})
	stored := r.Record(Record{ID: "2", Path: "/svc/products", StatusCode: http.StatusNotModified})
	assert.Equal(t, http.StatusNotModified, stored.StatusCode)
	assert.Equal(t, 2, r.Len())
}

func TestNotModifiedEvicts(t *testing.T) {
	r := New(Options{Capacity: 2})
	r.Record(Record{ID: "1", Path: "/p", StatusCode: 200})
	r.Record(Record{ID: "2", Path: "/q", StatusCode: 200})
	r.Record(Record{ID: "3", Path: "/p", StatusCode: http.StatusNotModified})
	s := r.Snapshot()
	assert.DeepEqual(t, []string{"2", "3"}, ids(s))
	assert.Equal(t, 200, s.Records[1].StatusCode)
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New(Options{Capacity: 2, Header: []string{"head"}, Footer: []string{"foot"}})
	r.Record(Record{ID: "1", Path: "/p", StatusCode: 200, Header: http.Header{"X": {"1"}}})
	s := r.Snapshot()
	assert.DeepEqual(t, []string{"head"}, s.Header)
	assert.DeepEqual(t, []string{"foot"}, s.Footer)
	s.Records[0].Header.Set("X", "2")
	s.Header[0] = "changed"
	again := r.Snapshot()
	assert.Equal(t, "1", again.Records[0].Header.Get("X"))
	assert.Equal(t, "head", again.Header[0])
}

func TestConcurrentRecord(t *testing.T) {
	r := New(Options{Capacity: 20})
	wg := sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("%d", i)
			r.Record(Record{ID: id, Path: "/p"})
			r.Record(Record{ID: id, Path: "/p", StatusCode: 200})
		}(i)
	}
	wg.Wait()
	s := r.Snapshot()
	assert.Equal(t, 20, len(s.Records))
	seen := map[string]bool{}
	for _, rec := range s.Records {
		assert.Check(t, !seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestSubscribe(t *testing.T) {
	r := New(Options{})
	c := make(chan *Ring, 1)
	unsubscribe := r.Subscribe(c)
	r.Record(Record{ID: "1"})
	r.Record(Record{ID: "2"})
	select {
	case got := <-c:
		assert.Equal(t, r, got)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	unsubscribe()
	r.Record(Record{ID: "3"})
	assert.Equal(t, 0, len(c))
}
