// Package fakefoundry is an in-process stand-in for the agent-hosting
// service, used by package and integration tests. It implements the slice
// of the REST surface the client consumes: agent CRUD, threads, messages,
// runs, cancellation, and tool-approval submission.
package fakefoundry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebmch/agentctl/pkg/foundry"
)

// RunScript produces the status snapshots a run steps through, one per poll.
// The last snapshot is sticky. A nil script completes the run immediately.
type RunScript func(threadID string, params foundry.RunParams) []foundry.Run

// Server simulates the hosting service behind an http.Handler.
type Server struct {
	mu      sync.Mutex
	agents  []foundry.Agent
	threads map[string]*threadState
	runs    map[string]*runState

	// Script drives run progression; see RunScript.
	Script RunScript
	// Reply is appended as the assistant's answer when a run completes.
	Reply string

	// Approvals collects every submitted approval batch, in order.
	Approvals [][]foundry.ToolApproval
	// CancelledRuns lists run ids that were cancelled.
	CancelledRuns []string
}

type threadState struct {
	thread   foundry.Thread
	messages []foundry.Message
}

type runState struct {
	threadID string
	params   foundry.RunParams
	steps    []foundry.Run
	current  foundry.Run
	// approvalPending blocks stepping until a batch arrives.
	approvalPending bool
	replied         bool
}

// New builds an empty fake service with an immediate-completion script.
func New() *Server {
	return &Server{
		threads: map[string]*threadState{},
		runs:    map[string]*runState{},
		Reply:   "All done.",
	}
}

// Handler exposes the service routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /assistants", s.listAgents)
	mux.HandleFunc("POST /assistants", s.createAgent)
	mux.HandleFunc("GET /assistants/{id}", s.getAgent)
	mux.HandleFunc("POST /assistants/{id}", s.updateAgent)
	mux.HandleFunc("POST /threads", s.createThread)
	mux.HandleFunc("POST /threads/{tid}/messages", s.createMessage)
	mux.HandleFunc("GET /threads/{tid}/messages", s.listMessages)
	mux.HandleFunc("POST /threads/{tid}/runs", s.createRun)
	mux.HandleFunc("GET /threads/{tid}/runs/{rid}", s.getRun)
	mux.HandleFunc("POST /threads/{tid}/runs/{rid}/cancel", s.cancelRun)
	mux.HandleFunc("POST /threads/{tid}/runs/{rid}/submit_tool_outputs", s.submitApprovals)
	return mux
}

// AgentCount reports how many agent definitions exist.
func (s *Server) AgentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents)
}

// ThreadIDs lists every created thread id in lexical order.
func (s *Server) ThreadIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Messages returns a copy of the messages on a thread.
func (s *Server) Messages(threadID string) []foundry.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return append([]foundry.Message(nil), state.messages...)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"object":   "list",
		"data":     s.agents,
		"has_more": false,
	})
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var params foundry.AgentParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agent := foundry.Agent{
		ID:           "asst_" + uuid.NewString(),
		Object:       "assistant",
		CreatedAt:    time.Now().Unix(),
		Name:         params.Name,
		Model:        params.Model,
		Instructions: params.Instructions,
		Tools:        params.Tools,
	}
	s.agents = append(s.agents, agent)
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	for _, agent := range s.agents {
		if agent.ID == id {
			writeJSON(w, http.StatusOK, agent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no agent %s", id))
}

func (s *Server) updateAgent(w http.ResponseWriter, r *http.Request) {
	var params foundry.AgentParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	for i := range s.agents {
		if s.agents[i].ID == id {
			s.agents[i].Name = params.Name
			s.agents[i].Model = params.Model
			s.agents[i].Instructions = params.Instructions
			s.agents[i].Tools = params.Tools
			writeJSON(w, http.StatusOK, s.agents[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no agent %s", id))
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := foundry.Thread{
		ID:        "thread_" + uuid.NewString(),
		Object:    "thread",
		CreatedAt: time.Now().Unix(),
	}
	s.threads[thread.ID] = &threadState{thread: thread}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var params struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.threads[r.PathValue("tid")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such thread")
		return
	}
	msg := newTextMessage(state.thread.ID, params.Role, params.Content)
	state.messages = append(state.messages, msg)
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.threads[r.PathValue("tid")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such thread")
		return
	}
	data := append([]foundry.Message(nil), state.messages...)
	if r.URL.Query().Get("order") == string(foundry.OrderDescending) {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object":   "list",
		"data":     data,
		"has_more": false,
	})
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var params foundry.RunParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	threadID := r.PathValue("tid")
	if _, ok := s.threads[threadID]; !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such thread")
		return
	}

	var steps []foundry.Run
	if s.Script != nil {
		steps = s.Script(threadID, params)
	}
	if len(steps) == 0 {
		steps = []foundry.Run{{Status: foundry.RunStatusCompleted}}
	}

	state := &runState{
		threadID: threadID,
		params:   params,
		steps:    steps,
		current: foundry.Run{
			ID:       "run_" + uuid.NewString(),
			Object:   "thread.run",
			ThreadID: threadID,
			AgentID:  params.AgentID,
			Status:   foundry.RunStatusQueued,
		},
	}
	s.runs[state.current.ID] = state
	writeJSON(w, http.StatusOK, state.current)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[r.PathValue("rid")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	s.step(state)
	writeJSON(w, http.StatusOK, state.current)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[r.PathValue("rid")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	state.steps = nil
	state.approvalPending = false
	state.current.Status = foundry.RunStatusCancelled
	state.current.RequiredAction = nil
	s.CancelledRuns = append(s.CancelledRuns, state.current.ID)
	writeJSON(w, http.StatusOK, state.current)
}

func (s *Server) submitApprovals(w http.ResponseWriter, r *http.Request) {
	var params struct {
		ToolApprovals []foundry.ToolApproval `json:"tool_approvals"`
	}
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[r.PathValue("rid")]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	if !state.approvalPending {
		writeError(w, http.StatusBadRequest, "invalid_state", "run is not waiting for approvals")
		return
	}
	s.Approvals = append(s.Approvals, append([]foundry.ToolApproval(nil), params.ToolApprovals...))
	state.approvalPending = false
	state.current.Status = foundry.RunStatusInProgress
	state.current.RequiredAction = nil
	writeJSON(w, http.StatusOK, state.current)
}

// step advances the run to its next scripted snapshot. Runs blocked on an
// approval episode hold still until the batch arrives.
func (s *Server) step(state *runState) {
	if state.approvalPending || len(state.steps) == 0 {
		s.maybeReply(state)
		return
	}
	next := state.steps[0]
	state.steps = state.steps[1:]
	state.current.Status = next.Status
	state.current.LastError = next.LastError
	state.current.RequiredAction = next.RequiredAction
	if next.Status == foundry.RunStatusRequiresAction {
		state.approvalPending = true
	}
	s.maybeReply(state)
}

// maybeReply appends the canned assistant answer once per completed run.
func (s *Server) maybeReply(state *runState) {
	if state.replied || state.current.Status != foundry.RunStatusCompleted {
		return
	}
	state.replied = true
	if thread, ok := s.threads[state.threadID]; ok && s.Reply != "" {
		thread.messages = append(thread.messages, newTextMessage(state.threadID, "assistant", s.Reply))
	}
}

func newTextMessage(threadID, role, text string) foundry.Message {
	return foundry.Message{
		ID:        "msg_" + uuid.NewString(),
		Object:    "thread.message",
		CreatedAt: time.Now().Unix(),
		ThreadID:  threadID,
		Role:      role,
		Content: []foundry.MessageContent{{
			Type: "text",
			Text: &foundry.MessageText{Value: text},
		}},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
