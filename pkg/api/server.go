package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fractional-finance/frabric-protocol/pkg/governance"
	"github.com/fractional-finance/frabric-protocol/pkg/membership"
	"github.com/fractional-finance/frabric-protocol/pkg/token"
	"github.com/fractional-finance/frabric-protocol/pkg/treasury"
	"github.com/fractional-finance/frabric-protocol/pkg/wallet"
)

// Server exposes the governance engine over HTTP
type Server struct {
	engine   *governance.Engine
	ledger   *token.Ledger
	members  *membership.Manager
	treasury *treasury.Treasury
	gatherer prometheus.Gatherer
	router   *mux.Router
	server   *http.Server
	logger   *slog.Logger
	port     uint
}

// NewServer creates a new API server
func NewServer(
	engine *governance.Engine,
	ledger *token.Ledger,
	members *membership.Manager,
	treas *treasury.Treasury,
	gatherer prometheus.Gatherer,
	port uint,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:   engine,
		ledger:   ledger,
		members:  members,
		treasury: treas,
		gatherer: gatherer,
		logger:   logger,
		port:     port,
	}
	s.setupRoutes()
	return s
}

// enableCORS enables CORS for all routes
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Use(enableCORS)

	// Governance routes
	s.router.HandleFunc("/api/status", s.getStatus).Methods("GET")
	s.router.HandleFunc("/api/proposals", s.listProposals).Methods("GET")
	s.router.HandleFunc("/api/proposals", s.submitProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}", s.getProposal).Methods("GET")
	s.router.HandleFunc("/api/proposals/{id}/votes", s.castVote).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/queue", s.queueProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/cancel", s.cancelProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/execute", s.executeProposal).Methods("POST")
	s.router.HandleFunc("/api/proposals/{id}/withdraw", s.withdrawProposal).Methods("POST")

	// Membership routes
	s.router.HandleFunc("/api/membership/members", s.listMembers).Methods("GET")
	s.router.HandleFunc("/api/membership/admissions", s.proposeAdmission).Methods("POST")
	s.router.HandleFunc("/api/membership/removals", s.proposeRemoval).Methods("POST")

	// Treasury routes
	s.router.HandleFunc("/api/treasury", s.getTreasury).Methods("GET")
	s.router.HandleFunc("/api/treasury/disbursements", s.proposeDisbursement).Methods("POST")

	// Wallet routes
	s.router.HandleFunc("/api/wallet/create", s.createWallet).Methods("POST")
	s.router.HandleFunc("/api/wallet/balance/{address}", s.getBalance).Methods("GET")

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the route handler, primarily for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving; it blocks until the server stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.logger.Info("api server listening", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type proposalView struct {
	ID           uint64    `json:"id"`
	Creator      string    `json:"creator"`
	Kind         uint8     `json:"kind"`
	State        string    `json:"state"`
	StateStart   time.Time `json:"stateStart"`
	Checkpoint   uint64    `json:"checkpoint"`
	NetVotes     string    `json:"netVotes"`
	EngagedPower string    `json:"engagedPower"`
	Voters       int       `json:"voters"`
}

func viewOf(p *governance.Proposal) proposalView {
	return proposalView{
		ID:           p.ID,
		Creator:      p.Creator,
		Kind:         uint8(p.Kind),
		State:        p.State.String(),
		StateStart:   p.StateStart,
		Checkpoint:   p.Checkpoint,
		NetVotes:     p.NetVotes.String(),
		EngagedPower: p.EngagedPower.String(),
		Voters:       len(p.Voters),
	}
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"height":      s.ledger.Height(),
		"totalSupply": s.ledger.CurrentTotalSupply().String(),
		"halted":      s.ledger.IsHalted(),
		"params":      s.engine.Params(),
	})
}

func (s *Server) listProposals(w http.ResponseWriter, r *http.Request) {
	var (
		proposals []*governance.Proposal
		err       error
	)
	switch state := r.URL.Query().Get("state"); state {
	case "":
		proposals, err = s.engine.ListProposals()
	case "active":
		proposals, err = s.engine.ListProposalsByState(governance.StateActive)
	case "queued":
		proposals, err = s.engine.ListProposalsByState(governance.StateQueued)
	case "executed":
		proposals, err = s.engine.ListProposalsByState(governance.StateExecuted)
	case "cancelled":
		proposals, err = s.engine.ListProposalsByState(governance.StateCancelled)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown state: %s", state))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]proposalView, 0, len(proposals))
	for _, p := range proposals {
		views = append(views, viewOf(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) submitProposal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Creator     string `json:"creator"`
		Kind        uint8  `json:"kind"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.engine.Submit(req.Creator, governance.Kind(req.Kind), req.Title, req.Description)
	if err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	proposal, err := s.engine.GetProposal(id)
	if err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(proposal))
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		Voter     string `json:"voter"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	direction, err := parseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.Vote(req.Voter, id, direction); err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) queueProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Queue(id); err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (s *Server) cancelProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		StaleYesVoters []string `json:"staleYesVoters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.Cancel(id, req.StaleYesVoters); err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) executeProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Execute(id); err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "executed"})
}

func (s *Server) withdrawProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req struct {
		Caller string `json:"caller"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.Withdraw(req.Caller, id); err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.members.Members())
}

func (s *Server) proposeAdmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Creator   string `json:"creator"`
		Candidate string `json:"candidate"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.members.ProposeAdmission(req.Creator, req.Candidate, req.Name)
	if err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) proposeRemoval(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Creator string `json:"creator"`
		Member  string `json:"member"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.members.ProposeRemoval(req.Creator, req.Member)
	if err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) getTreasury(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"account": s.treasury.Account(),
		"balance": s.treasury.Balance().String(),
	})
}

func (s *Server) proposeDisbursement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Creator   string `json:"creator"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid amount: %s", req.Amount))
		return
	}

	id, err := s.treasury.ProposeDisbursement(req.Creator, req.Recipient, amount)
	if err != nil {
		writeGovernanceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) createWallet(w http.ResponseWriter, r *http.Request) {
	wlt, err := wallet.New()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"address":    wlt.Address,
		"privateKey": hex.EncodeToString(wlt.PrivateKey.D.Bytes()),
	})
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, map[string]string{
		"address": address,
		"balance": s.ledger.Balance(address).String(),
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid proposal id"))
		return 0, false
	}
	return id, true
}

func parseDirection(direction string) (governance.VoteDirection, error) {
	switch direction {
	case "yes":
		return governance.VoteYes, nil
	case "no":
		return governance.VoteNo, nil
	case "abstain":
		return governance.VoteNone, nil
	default:
		return governance.VoteNone, fmt.Errorf("unknown direction: %s", direction)
	}
}

// writeGovernanceError maps engine sentinels to HTTP statuses
func writeGovernanceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, governance.ErrProposalNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, governance.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, governance.ErrNotActive),
		errors.Is(err, governance.ErrDuplicateVote),
		errors.Is(err, governance.ErrNoVotingPower),
		errors.Is(err, governance.ErrVotingOpen),
		errors.Is(err, governance.ErrQuorumNotMet),
		errors.Is(err, governance.ErrNotQueued),
		errors.Is(err, governance.ErrTimelockNotElapsed),
		errors.Is(err, governance.ErrNotStaleVoter),
		errors.Is(err, governance.ErrCancellationIneffective),
		errors.Is(err, governance.ErrLedgerHalted):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, membership.ErrAlreadyMember),
		errors.Is(err, membership.ErrNotMember),
		errors.Is(err, token.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
