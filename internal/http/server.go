package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ajinkyakothe/votingapp/internal/auth"
	"github.com/ajinkyakothe/votingapp/internal/config"
	"github.com/ajinkyakothe/votingapp/internal/crypto"
	"github.com/ajinkyakothe/votingapp/internal/metrics"
	"github.com/ajinkyakothe/votingapp/internal/model"
	"github.com/ajinkyakothe/votingapp/internal/repository"
)

const tallyCacheKey = "votingapp:tally"

type Server struct {
	cfg         config.Config
	store       *repository.Store
	redis       *redis.Client
	metrics     *metrics.Collector
	authLimiter *ipLimiter
}

// NewServer wires the HTTP surface. redisClient may be nil; the tally cache
// is skipped in that case.
func NewServer(cfg config.Config, store *repository.Store, redisClient *redis.Client, collector *metrics.Collector) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		redis:       redisClient,
		metrics:     collector,
		authLimiter: newIPLimiter(cfg.LoginRatePerMinute, cfg.LoginBurst),
	}
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.authLimiter.Stop()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/user", func(r chi.Router) {
		r.With(s.authLimiter.middleware).Post("/signup", s.handleSignup)
		r.With(s.authLimiter.middleware).Post("/login", s.handleLogin)
		r.With(s.authMiddleware).Get("/profile", s.handleProfile)
		r.With(s.authMiddleware).Put("/profile/password", s.handleChangePassword)
	})

	r.Route("/candidate", func(r chi.Router) {
		r.Get("/vote/count", s.handleVoteCount)
		r.Get("/getcandidate", s.handleListCandidates)
		r.With(s.authMiddleware).Post("/vote/{candidateID}", s.handleCastVote)
		r.With(s.authMiddleware, s.requireAdmin).Post("/", s.handleCreateCandidate)
		r.With(s.authMiddleware, s.requireAdmin).Put("/{candidateID}", s.handleUpdateCandidate)
		r.With(s.authMiddleware, s.requireAdmin).Delete("/{candidateID}", s.handleDeleteCandidate)
	})

	return r
}

type userSummary struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Age              int     `json:"age"`
	Email            *string `json:"email,omitempty"`
	Mobile           *string `json:"mobile,omitempty"`
	Address          string  `json:"address"`
	AadharCardNumber string  `json:"aadharCardNumber"`
	Role             string  `json:"role"`
	IsVoted          bool    `json:"isVoted"`
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:               user.ID,
		Name:             user.Name,
		Age:              user.Age,
		Email:            user.Email,
		Mobile:           user.Mobile,
		Address:          user.Address,
		AadharCardNumber: user.AadharNumber,
		Role:             user.Role,
		IsVoted:          user.HasVoted,
	}
}

type candidateSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Party     string `json:"party"`
	Age       int    `json:"age"`
	VoteCount int    `json:"voteCount"`
}

func mapCandidateSummary(candidate model.Candidate) candidateSummary {
	return candidateSummary{
		ID:        candidate.ID,
		Name:      candidate.Name,
		Party:     candidate.Party,
		Age:       candidate.Age,
		VoteCount: candidate.VoteCount,
	}
}

type publicCandidate struct {
	Name  string `json:"name"`
	Party string `json:"party"`
}

type tallyEntry struct {
	Party string `json:"party"`
	Count int    `json:"count"`
}

type signupRequest struct {
	Name             string `json:"name"`
	Age              int    `json:"age"`
	Email            string `json:"email"`
	Mobile           string `json:"mobile"`
	Address          string `json:"address"`
	AadharCardNumber string `json:"aadharCardNumber"`
	Password         string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.AadharCardNumber = strings.TrimSpace(req.AadharCardNumber)
	if req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if !validAadhar(req.AadharCardNumber) {
		writeError(w, http.StatusBadRequest, "invalid_aadhar")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.serverError(w, "hash password", err)
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		AadharNumber: req.AadharCardNumber,
		Name:         req.Name,
		Age:          req.Age,
		Email:        optional(req.Email),
		Mobile:       optional(req.Mobile),
		Address:      strings.TrimSpace(req.Address),
		PasswordHash: hash,
		Role:         model.RoleCitizen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, model.ErrDuplicateAadhar):
			writeError(w, http.StatusConflict, "aadhar_already_registered")
		case errors.Is(err, model.ErrDuplicateContact):
			writeError(w, http.StatusConflict, "contact_already_registered")
		default:
			s.serverError(w, "create user", err)
		}
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, auth.Claims{UserID: user.ID})
	if err != nil {
		s.serverError(w, "issue token", err)
		return
	}

	s.metrics.RecordSignup()
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  mapUserSummary(user),
		"token": token,
	})
}

type loginRequest struct {
	AadharCardNumber string `json:"aadharCardNumber"`
	Password         string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.AadharCardNumber = strings.TrimSpace(req.AadharCardNumber)
	if req.AadharCardNumber == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByAadhar(r.Context(), req.AadharCardNumber)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			s.metrics.RecordLogin("invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		s.serverError(w, "load user", err)
		return
	}

	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		s.metrics.RecordLogin("invalid_credentials")
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, auth.Claims{UserID: user.ID})
	if err != nil {
		s.serverError(w, "issue token", err)
		return
	}

	s.metrics.RecordLogin("ok")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": mapUserSummary(*principal)})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	if err := crypto.CheckPassword(principal.PasswordHash, req.CurrentPassword); err != nil {
		writeError(w, http.StatusUnauthorized, "wrong_password")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		writeError(w, http.StatusBadRequest, "password_unchanged")
		return
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		s.serverError(w, "hash password", err)
		return
	}
	if err := s.store.UpdatePassword(r.Context(), principal.ID, hash); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "user_not_found")
			return
		}
		s.serverError(w, "update password", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

type candidateRequest struct {
	Name  string `json:"name"`
	Party string `json:"party"`
	Age   int    `json:"age"`
}

func (req *candidateRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Party = strings.TrimSpace(req.Party)
	if req.Name == "" {
		return "missing_name"
	}
	if req.Party == "" {
		return "missing_party"
	}
	if req.Age < 0 {
		return "invalid_age"
	}
	return ""
}

func (s *Server) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if code := req.validate(); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	now := time.Now().UTC()
	candidate := model.Candidate{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Party:     req.Party,
		Age:       req.Age,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateCandidate(r.Context(), candidate); err != nil {
		s.serverError(w, "create candidate", err)
		return
	}

	s.invalidateTally(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"candidate": mapCandidateSummary(candidate)})
}

func (s *Server) handleUpdateCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")
	if _, err := uuid.Parse(candidateID); err != nil {
		writeError(w, http.StatusNotFound, "candidate_not_found")
		return
	}

	var req candidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if code := req.validate(); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	candidate, err := s.store.UpdateCandidate(r.Context(), model.Candidate{
		ID:    candidateID,
		Name:  req.Name,
		Party: req.Party,
		Age:   req.Age,
	})
	if err != nil {
		if errors.Is(err, model.ErrCandidateNotFound) {
			writeError(w, http.StatusNotFound, "candidate_not_found")
			return
		}
		s.serverError(w, "update candidate", err)
		return
	}

	s.invalidateTally(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"candidate": mapCandidateSummary(candidate)})
}

func (s *Server) handleDeleteCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID := chi.URLParam(r, "candidateID")
	if _, err := uuid.Parse(candidateID); err != nil {
		writeError(w, http.StatusNotFound, "candidate_not_found")
		return
	}

	candidate, err := s.store.DeleteCandidate(r.Context(), candidateID, s.cfg.CandidateDeletePolicy)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrCandidateNotFound):
			writeError(w, http.StatusNotFound, "candidate_not_found")
		case errors.Is(err, model.ErrCandidateHasVotes):
			writeError(w, http.StatusConflict, "candidate_has_votes")
		default:
			s.serverError(w, "delete candidate", err)
		}
		return
	}

	s.invalidateTally(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"candidate": mapCandidateSummary(candidate)})
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	candidateID := chi.URLParam(r, "candidateID")
	if _, err := uuid.Parse(candidateID); err != nil {
		s.metrics.RecordVoteRejected("candidate_not_found")
		writeError(w, http.StatusNotFound, "candidate_not_found")
		return
	}

	if _, err := s.store.CastVote(r.Context(), principal.ID, candidateID); err != nil {
		switch {
		case errors.Is(err, model.ErrUserNotFound):
			s.metrics.RecordVoteRejected("voter_not_found")
			writeError(w, http.StatusNotFound, "user_not_found")
		case errors.Is(err, model.ErrCandidateNotFound):
			s.metrics.RecordVoteRejected("candidate_not_found")
			writeError(w, http.StatusNotFound, "candidate_not_found")
		case errors.Is(err, model.ErrAdminCannotVote):
			s.metrics.RecordVoteRejected("admin_cannot_vote")
			writeError(w, http.StatusForbidden, "admin_cannot_vote")
		case errors.Is(err, model.ErrAlreadyVoted):
			s.metrics.RecordVoteRejected("already_voted")
			writeError(w, http.StatusBadRequest, "already_voted")
		default:
			s.serverError(w, "cast vote", err)
		}
		return
	}

	s.metrics.RecordVoteCast()
	s.invalidateTally(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"message": "vote recorded successfully"})
}

func (s *Server) handleVoteCount(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		if payload, err := s.redis.Get(r.Context(), tallyCacheKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload)
			return
		}
	}

	tallies, err := s.store.TallyByParty(r.Context())
	if err != nil {
		s.serverError(w, "load tally", err)
		return
	}

	resp := make([]tallyEntry, 0, len(tallies))
	for _, tally := range tallies {
		resp = append(resp, tallyEntry{Party: tally.Party, Count: tally.Count})
	}

	if s.redis != nil {
		if payload, err := json.Marshal(resp); err == nil {
			_ = s.redis.Set(r.Context(), tallyCacheKey, payload, s.cfg.TallyCacheTTL).Err()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := s.store.ListCandidates(r.Context())
	if err != nil {
		s.serverError(w, "list candidates", err)
		return
	}

	resp := make([]publicCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		resp = append(resp, publicCandidate{Name: candidate.Name, Party: candidate.Party})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) invalidateTally(ctx context.Context) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, tallyCacheKey).Err()
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		user, err := s.store.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, model.ErrUserNotFound) {
				writeError(w, http.StatusUnauthorized, "user_not_found")
				return
			}
			s.serverError(w, "load principal", err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey{}, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin re-reads the caller's role from the store at check time;
// anything short of a definitive admin role is forbidden.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := principalFromContext(r.Context())
		if principal == nil {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		user, err := s.store.GetUserByID(r.Context(), principal.ID)
		if err != nil || user.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type principalKey struct{}

func principalFromContext(ctx context.Context) *model.User {
	value := ctx.Value(principalKey{})
	principal, _ := value.(*model.User)
	return principal
}

var aadharPattern = regexp.MustCompile(`^[0-9]{12}$`)

func validAadhar(aadhar string) bool {
	return aadharPattern.MatchString(aadhar)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	log.Printf("%s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "server_error")
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
