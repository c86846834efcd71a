// Package qblasttest provides an in-process fake of the BLAST URL API.
package qblasttest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Outcome decides how the fake answers a query.
type Outcome int

const (
	Ready      Outcome = iota // search completes, report returned
	Failed                    // Status=FAILED
	ServerDown                // Put answers 503
	Throttled                 // Put answers 429
)

// Server is a fake Blast.cgi. Decide maps the submitted query (FASTA text) to
// an outcome; nil means every search succeeds. Reports are
// "<FORMAT_TYPE>:<first header line>\n".
type Server struct {
	*httptest.Server
	Decide func(query string) Outcome
	// WaitingPolls is how many polls report WAITING before READY.
	WaitingPolls int

	mu      sync.Mutex
	next    int
	queries map[string]string // rid -> query
	polls   map[string]int
	puts    []string
	forms   []map[string]string
}

// NewServer starts a fake. Callers must Close it.
func NewServer(decide func(query string) Outcome) *Server {
	s := &Server{
		Decide:  decide,
		queries: map[string]string{},
		polls:   map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Puts returns the submitted queries in arrival order.
func (s *Server) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

// LastForm returns the form values of the most recent request.
func (s *Server) LastForm() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	return s.forms[len(s.forms)-1]
}

func (s *Server) outcome(q string) Outcome {
	if s.Decide == nil {
		return Ready
	}
	return s.Decide(q)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form := map[string]string{}
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	s.mu.Lock()
	s.forms = append(s.forms, form)
	s.mu.Unlock()

	switch {
	case form["CMD"] == "Put":
		s.handlePut(w, form)
	case form["CMD"] == "Get" && form["FORMAT_OBJECT"] == "SearchInfo":
		s.handlePoll(w, form["RID"])
	case form["CMD"] == "Get":
		s.handleGet(w, form["RID"], form["FORMAT_TYPE"])
	default:
		http.Error(w, "bad CMD", http.StatusBadRequest)
	}
}

func (s *Server) handlePut(w http.ResponseWriter, form map[string]string) {
	q := form["QUERY"]
	switch s.outcome(q) {
	case ServerDown:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	case Throttled:
		http.Error(w, "slow down", http.StatusTooManyRequests)
		return
	}
	s.mu.Lock()
	s.next++
	rid := fmt.Sprintf("RID%04d", s.next)
	s.queries[rid] = q
	s.puts = append(s.puts, q)
	s.mu.Unlock()

	fmt.Fprintf(w, "<!--QBlastInfoBegin\n    RID = %s\n    RTOE = 0\nQBlastInfoEnd\n-->\n", rid)
}

func (s *Server) handlePoll(w http.ResponseWriter, rid string) {
	s.mu.Lock()
	q, ok := s.queries[rid]
	s.polls[rid]++
	n := s.polls[rid]
	s.mu.Unlock()

	status := "READY"
	switch {
	case !ok:
		status = "UNKNOWN"
	case s.outcome(q) == Failed:
		status = "FAILED"
	case n <= s.WaitingPolls:
		status = "WAITING"
	}
	fmt.Fprintf(w, "<!--QBlastInfoBegin\n\tStatus=%s\nQBlastInfoEnd\n-->\n", status)
}

func (s *Server) handleGet(w http.ResponseWriter, rid, format string) {
	s.mu.Lock()
	q, ok := s.queries[rid]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown rid", http.StatusNotFound)
		return
	}
	header, _, _ := strings.Cut(q, "\n")
	fmt.Fprintf(w, "%s:%s\n", format, header)
}
