package authsvc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	conf "github.com/akimov/audiopipe/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	repo      UserRepo
	secret    string
	tokenTTL  time.Duration
	validator *validator.Validate
}

func NewHandler(repo UserRepo, cfg *conf.Auth) *Handler {
	ttl := cfg.TokenTTL * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handler{
		repo:      repo,
		secret:    cfg.JWTSecret,
		tokenTTL:  ttl,
		validator: validator.New(),
	}
}

func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/validate", h.Validate)
	return r
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "email and password are required", http.StatusBadRequest)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeJSONError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSONError(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	err = h.repo.CreateUser(r.Context(), req.Email, string(hash))
	if errors.Is(err, ErrUserExists) {
		writeJSONError(w, "user already exists", http.StatusConflict)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "user created"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok || email == "" || password == "" {
		unauthorized(w)
		return
	}

	user, err := h.repo.GetUser(r.Context(), email)
	if errors.Is(err, ErrUserNotFound) {
		unauthorized(w)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		unauthorized(w)
		return
	}

	token, err := CreateToken(user.Email, h.secret, h.tokenTTL)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		unauthorized(w)
		return
	}

	claims, err := ParseToken(strings.TrimPrefix(header, "Bearer "), h.secret)
	if err != nil {
		unauthorized(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(claims)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Login required"`)
	writeJSONError(w, "could not verify credentials", http.StatusUnauthorized)
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
