package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/alem-hub/counseling-hub/internal/application/command"
	"github.com/alem-hub/counseling-hub/internal/application/query"
	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/branch"
	"github.com/alem-hub/counseling-hub/internal/domain/ranking"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Counseling Portal API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"health":  "/health",
			"status":  "/api/v1/students/{email}/status",
			"profile": "/api/v1/students/{email}/profile",
			"admin":   "/api/v1/admin/students",
		},
	})
}

// handleHealth reports every registered check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady answers 503 until the record store is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Healthy {
			writeJSONErrorWithDetails(w, r, http.StatusServiceUnavailable, "not_ready",
				"Service is not ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type profileRequest struct {
	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
	ParentName  string `json:"parentName"`
	ParentPhone string `json:"parentPhone"`
}

type academicsRequest struct {
	Math10    int `json:"math10"`
	Science10 int `json:"science10"`
	English10 int `json:"english10"`
	Hindi10   int `json:"hindi10"`
	Social10  int `json:"social10"`

	Physics12   int `json:"physics12"`
	Chemistry12 int `json:"chemistry12"`
	Math12      int `json:"math12"`
	English12   int `json:"english12"`

	Preference1 string `json:"preference1"`
	Preference2 string `json:"preference2"`
}

type paymentRequest struct {
	Amount        int    `json:"amount"`
	TransactionID string `json:"transactionId"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	ReceiptFile   string `json:"receiptFile"`
}

// handleSubmitProfile handles PUT /api/v1/students/{email}/profile
func (s *Server) handleSubmitProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.SubmitProfile.Handle(r.Context(), command.SubmitProfileCommand{
		Email:       r.PathValue("email"),
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Phone:       req.Phone,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		Pincode:     req.Pincode,
		ParentName:  req.ParentName,
		ParentPhone: req.ParentPhone,
	})
	writeSubmitResult(w, r, res, err)
}

// handleSubmitAcademics handles PUT /api/v1/students/{email}/academics
func (s *Server) handleSubmitAcademics(w http.ResponseWriter, r *http.Request) {
	var req academicsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.SubmitAcademics.Handle(r.Context(), command.SubmitAcademicsCommand{
		Email:       r.PathValue("email"),
		Math10:      req.Math10,
		Science10:   req.Science10,
		English10:   req.English10,
		Hindi10:     req.Hindi10,
		Social10:    req.Social10,
		Physics12:   req.Physics12,
		Chemistry12: req.Chemistry12,
		Math12:      req.Math12,
		English12:   req.English12,
		Preference1: req.Preference1,
		Preference2: req.Preference2,
	})
	writeSubmitResult(w, r, res, err)
}

// handleSubmitPayment handles PUT /api/v1/students/{email}/payment
func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.deps.SubmitPayment.Handle(r.Context(), command.SubmitPaymentCommand{
		Email:         r.PathValue("email"),
		Amount:        req.Amount,
		TransactionID: req.TransactionID,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		ReceiptFile:   req.ReceiptFile,
	})
	writeSubmitResult(w, r, res, err)
}

func writeSubmitResult(w http.ResponseWriter, r *http.Request, res *command.SubmitResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	writeJSONWithMeta(w, r, code, res.Record, &ResponseMeta{Version: res.Version})
}

// handleGetStatus handles GET /api/v1/students/{email}/status
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetStudentStatus.Handle(r.Context(), query.GetStudentStatusQuery{
		Email: r.PathValue("email"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{Version: dto.Version})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN: STUDENTS, RANKINGS, SEATS
// ══════════════════════════════════════════════════════════════════════════════

// handleListStudents handles GET /api/v1/admin/students
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := getQueryParamInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	dto, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{
		Search: r.URL.Query().Get("search"),
		Filter: query.StudentFilter(r.URL.Query().Get("filter")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto.Students, &ResponseMeta{
		TotalCount: dto.Total,
		Limit:      dto.Limit,
		Offset:     dto.Offset,
		HasMore:    dto.Offset+len(dto.Students) < dto.Total,
	})
}

// handleGetRankings handles GET /api/v1/admin/rankings
func (s *Server) handleGetRankings(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dto, err := s.deps.GetRankings.Handle(r.Context(), query.GetRankingsQuery{Limit: limit})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type rankingResponse struct {
	Ranked   []ranking.Entry `json:"ranked"`
	Unranked []string        `json:"unranked"`
	Cleared  []string        `json:"cleared,omitempty"`
	Changed  int             `json:"changed"`
}

// handleGenerateRankings handles POST /api/v1/admin/rankings
func (s *Server) handleGenerateRankings(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.GenerateRankings.Handle(r.Context(), command.GenerateRankingsCommand{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, rankingResponse{
		Ranked:   res.Ranking.Ranked,
		Unranked: emails(res.Ranking.Unranked),
		Cleared:  emails(res.Ranking.Cleared),
		Changed:  res.Ranking.Changed(),
	}, &ResponseMeta{Version: res.Version, TotalCount: len(res.Ranking.Ranked)})
}

type allocationResponse struct {
	*allocation.Result
	Assigned  int `json:"assigned"`
	Unplaced  int `json:"unplaced"`
	Overrides int `json:"overrides"`
	Changed   int `json:"changed"`
}

// handleAllocateSeats handles POST /api/v1/admin/allocations
func (s *Server) handleAllocateSeats(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.AllocateSeats.Handle(r.Context(), command.AllocateSeatsCommand{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	cycle := res.Cycle
	writeJSONWithMeta(w, r, http.StatusOK, allocationResponse{
		Result:    cycle,
		Assigned:  cycle.Count(allocation.ChoiceFirst) + cycle.Count(allocation.ChoiceSecond),
		Unplaced:  cycle.Count(allocation.ChoiceNone),
		Overrides: cycle.Count(allocation.ChoiceOverride),
		Changed:   cycle.Changed(),
	}, &ResponseMeta{Version: res.Version})
}

type overrideRequest struct {
	Branch string `json:"branch"`
	Clear  bool   `json:"clear"`
}

type overrideResponse struct {
	Record   *student.Record `json:"record"`
	Previous *branch.Code    `json:"previous"`
}

// handleOverrideAllocation handles PUT /api/v1/admin/allocations/{email}
func (s *Server) handleOverrideAllocation(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := r.PathValue("email")
	res, err := s.deps.OverrideAllocation.Handle(r.Context(), command.OverrideAllocationCommand{
		Email:  email,
		Branch: req.Branch,
		Clear:  req.Clear,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("allocation overridden",
		logger.Email(email),
		logger.Branch(req.Branch),
		logger.Bool("clear", req.Clear),
	)
	writeJSONWithMeta(w, r, http.StatusOK, overrideResponse{
		Record:   res.Record,
		Previous: res.Previous,
	}, &ResponseMeta{Version: res.Version})
}

// handleGetSeats handles GET /api/v1/admin/seats
func (s *Server) handleGetSeats(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetSeatSummary.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetStats handles GET /api/v1/admin/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetDashboardStats.Handle(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, dto, &ResponseMeta{Version: dto.Version})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN: PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

// handleVerifyPayment handles POST /api/v1/admin/payments/{email}/verify
func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ReviewPayment.Verify(r.Context(), r.PathValue("email"))
	writeReviewResult(w, r, res, err)
}

// handleRejectPayment handles POST /api/v1/admin/payments/{email}/reject
func (s *Server) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.ReviewPayment.Reject(r.Context(), r.PathValue("email"))
	writeReviewResult(w, r, res, err)
}

func writeReviewResult(w http.ResponseWriter, r *http.Request, res *command.ReviewPaymentResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, res.Record, &ResponseMeta{Version: res.Version})
}

// handleVerifyAllPayments handles POST /api/v1/admin/payments/verify-all
func (s *Server) handleVerifyAllPayments(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.VerifyAllPayments.Handle(r.Context(), command.VerifyAllPaymentsCommand{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	verified := emails(res.Verified)
	if verified == nil {
		verified = []string{}
	}
	writeJSONWithMeta(w, r, http.StatusOK, map[string]any{"verified": verified},
		&ResponseMeta{Version: res.Version, TotalCount: len(verified)})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON body into dst and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) {
		err = errors.New("request body is empty")
	}
	writeError(w, r, shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "invalid JSON body", err))
	return false
}

func emails(in []student.Email) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, e := range in {
		out[i] = string(e)
	}
	return out
}
