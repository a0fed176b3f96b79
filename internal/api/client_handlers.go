package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/store"
)

type createClientRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type clientDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

func toClientDTO(c store.Client) clientDTO {
	return clientDTO{
		ID:        c.ID.String(),
		Name:      c.Name,
		Domain:    c.Domain,
		CreatedAt: c.CreatedAt,
	}
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := s.ids.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate client id")
		return
	}
	client := store.Client{
		ID:        id,
		Name:      req.Name,
		Domain:    strings.TrimSpace(req.Domain),
		CreatedAt: s.clk.Now(),
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	if err := s.clients.CreateClient(ctx, client); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "client name already taken")
			return
		}
		s.logger.Error("create client failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create client")
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(client))
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	clients, err := s.clients.ListClients(ctx)
	if err != nil {
		s.logger.Error("list clients failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list clients")
		return
	}
	dtos := make([]clientDTO, 0, len(clients))
	for _, c := range clients {
		dtos = append(dtos, toClientDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": dtos})
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		s.logger.Error("get client failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load client")
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	if err := s.clients.DeleteClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		s.logger.Error("delete client failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete client")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func parseClientID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "client_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("client_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid client_id")
	}
	return id, nil
}

func parseJobID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "job_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("job_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid job_id")
	}
	return id, nil
}
