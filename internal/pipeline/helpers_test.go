package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

func rawRecord(id int) map[string]interface{} {
	weights := make([]int, 11)
	for i := range weights {
		weights[i] = (id + i) % 6
	}
	return map[string]interface{}{
		"id":        id,
		"gender":    "female",
		"age":       "25-34",
		"country":   "FRA",
		"comments":  "first line\r\nsecond line",
		"timestamp": "2016-03-01T10:00:00",
		"weights":   weights,
	}
}

type upstream struct {
	*httptest.Server
	hits atomic.Int32
}

// newUpstream serves total records through ?offset=&limit= paging.
// failPages maps a page offset to the number of 500 responses it returns
// before succeeding.
func newUpstream(t *testing.T, total int, failPages map[int]int) *upstream {
	t.Helper()
	u := &upstream{}
	failures := map[int]int{}
	for k, v := range failPages {
		failures[k] = v
	}

	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		if failures[offset] > 0 {
			failures[offset]--
			http.Error(w, "upstream unavailable", http.StatusInternalServerError)
			return
		}

		records := []map[string]interface{}{}
		for id := offset; id < offset+limit && id < total; id++ {
			records = append(records, rawRecord(id))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	}))
	t.Cleanup(u.Close)
	return u
}

func dummyRows(n int) []GenericRecord {
	rows := make([]GenericRecord, n)
	for i := range rows {
		rows[i] = GenericRecord{"id": i}
	}
	return rows
}
