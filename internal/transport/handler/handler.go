package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	conf "github.com/akimov/audiopipe/internal/config"
	"github.com/akimov/audiopipe/internal/gateway"
	"github.com/akimov/audiopipe/internal/identity"
	"github.com/akimov/audiopipe/internal/status"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
)

type UseCase interface {
	Login(ctx context.Context, username, password string) (string, error)
	Submit(ctx context.Context, payload []byte, contentType, token string) (string, error)
	Status(ctx context.Context, fid string) (status.Record, error)
}

type Handler struct {
	useCase UseCase
	cfg     *conf.Config
}

func New(useCase UseCase, cfg *conf.Config) *Handler {
	return &Handler{
		useCase: useCase,
		cfg:     cfg,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		writeJSONError(w, "missing credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.useCase.Login(r.Context(), username, password)
	if errors.Is(err, identity.ErrUnauthorized) {
		writeJSONError(w, "could not verify credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (h *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, _, err := r.FormFile("video")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing video file: form field key should be "video"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fileType := mime.String()
	if err := validateMimeType(fileType); err != nil {
		writeJSONError(w, fmt.Sprintf("unsupported file type: %s", fileType), http.StatusBadRequest)
		return
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	fid, err := h.useCase.Submit(r.Context(), payload, fileType, token)
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		writeJSONError(w, "could not verify credentials", http.StatusUnauthorized)
		return
	case errors.Is(err, gateway.ErrUploadFailed):
		writeJSONError(w, "internal server error, storage level", http.StatusInternalServerError)
		return
	case errors.Is(err, gateway.ErrEnqueueFailed):
		writeJSONError(w, "internal server error, queue level", http.StatusInternalServerError)
		return
	case err != nil:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"fid": fid})
}

func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	fid := chi.URLParam(r, "fid")
	if fid == "" {
		writeJSONError(w, "job id required", http.StatusBadRequest)
		return
	}

	rec, err := h.useCase.Status(r.Context(), fid)
	if err != nil {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
