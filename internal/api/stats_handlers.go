package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/botreg"
	"github.com/mkessler/crawlscope/internal/logparse"
	"github.com/mkessler/crawlscope/internal/store"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// requireClient rejects requests against clients that do not exist before
// any aggregation work runs. It writes the response on failure.
func (s *Server) requireClient(w http.ResponseWriter, r *http.Request, clientID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	if _, err := s.clients.GetClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return false
		}
		s.logger.Error("resolve client failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to resolve client")
		return false
	}
	return true
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.requireClient(w, r, filter.ClientID) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	dash, err := s.stats.Dashboard(ctx, filter)
	if err != nil {
		s.logger.Error("dashboard query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) pages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.requireClient(w, r, filter.ClientID) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	list, err := s.stats.Pages(ctx, filter, limit, offset)
	if err != nil {
		s.logger.Error("page listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) orphanPages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.requireClient(w, r, filter.ClientID) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	orphans, err := s.stats.Orphans(ctx, filter, limit, offset)
	if err != nil {
		s.logger.Error("orphan listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list orphan pages")
		return
	}
	writeJSON(w, http.StatusOK, orphans)
}

func (s *Server) comparePeriods(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	aStart, err := requireDate(r, "period_a_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	aEnd, err := requireDate(r, "period_a_end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bStart, err := requireDate(r, "period_b_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bEnd, err := requireDate(r, "period_b_end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.requireClient(w, r, clientID) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	cmp, err := s.stats.ComparePeriods(ctx, clientID, aStart, endOfDay(aEnd), bStart, endOfDay(bEnd))
	if err != nil {
		s.logger.Error("period comparison failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compare periods")
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) frequency(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = "day"
	}
	if groupBy != "day" && groupBy != "week" {
		writeError(w, http.StatusBadRequest, "group_by must be day or week")
		return
	}
	if !s.requireClient(w, r, clientID) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	series, err := s.stats.Frequency(ctx, clientID, r.URL.Query().Get("url"), groupBy)
	if err != nil {
		s.logger.Error("frequency query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute frequency series")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (s *Server) dateRange(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.requireClient(w, r, clientID) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	rng, err := s.stats.Range(ctx, store.RecordFilter{ClientID: clientID})
	if err != nil {
		s.logger.Error("date range query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute date range")
		return
	}
	writeJSON(w, http.StatusOK, rng)
}

type botDTO struct {
	Name string `json:"name"`
}

type familyDTO struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Color string   `json:"color"`
	Bots  []botDTO `json:"bots"`
}

func (s *Server) botFamilies(w http.ResponseWriter, _ *http.Request) {
	families := botreg.Families()
	dtos := make([]familyDTO, 0, len(families))
	for _, fam := range families {
		bots := make([]botDTO, 0, len(fam.Bots))
		for _, bot := range fam.Bots {
			bots = append(bots, botDTO{Name: bot.Name})
		}
		dtos = append(dtos, familyDTO{
			Name:  fam.Name,
			Type:  string(fam.Type),
			Color: fam.Color,
			Bots:  bots,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"families": dtos})
}

func (s *Server) pageTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"page_types": logparse.PageTypes()})
}

// parseRecordFilter builds the shared aggregation filter from the route's
// client id and the optional query parameters.
func parseRecordFilter(r *http.Request) (store.RecordFilter, error) {
	clientID, err := parseClientID(r)
	if err != nil {
		return store.RecordFilter{}, err
	}
	q := r.URL.Query()
	filter := store.RecordFilter{
		ClientID:  clientID,
		Crawler:   strings.TrimSpace(q.Get("crawler")),
		BotFamily: strings.TrimSpace(q.Get("bot_family")),
		PageType:  strings.TrimSpace(q.Get("page_type")),
		Search:    strings.TrimSpace(q.Get("search")),
	}
	if raw := q.Get("http_code"); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil || code < 100 || code > 599 {
			return store.RecordFilter{}, errors.New("invalid http_code")
		}
		filter.HTTPCode = code
	}
	if start, err := optionalDate(q.Get("start_date")); err != nil {
		return store.RecordFilter{}, fmt.Errorf("invalid start_date: %w", err)
	} else if start != nil {
		filter.StartDate = start
	}
	if end, err := optionalDate(q.Get("end_date")); err != nil {
		return store.RecordFilter{}, fmt.Errorf("invalid end_date: %w", err)
	} else if end != nil {
		eod := endOfDay(*end)
		filter.EndDate = &eod
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return store.RecordFilter{}, errors.New("end_date is before start_date")
	}
	return filter, nil
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, errors.New("expected YYYY-MM-DD")
	}
	return &t, nil
}

func requireDate(r *http.Request, name string) (time.Time, error) {
	t, err := optionalDate(r.URL.Query().Get(name))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	if t == nil {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	return *t, nil
}

// endOfDay widens a date-only bound to cover the whole day.
func endOfDay(t time.Time) time.Time {
	return t.Add(24*time.Hour - time.Nanosecond)
}
