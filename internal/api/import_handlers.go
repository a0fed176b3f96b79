package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkessler/crawlscope/internal/logparse"
	"github.com/mkessler/crawlscope/internal/store"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
	sniffLineBytes  = 1 << 20
)

type jobDTO struct {
	ID                string     `json:"id"`
	ClientID          string     `json:"client_id"`
	Filename          string     `json:"filename"`
	FileType          string     `json:"file_type"`
	Status            string     `json:"status"`
	TotalLines        int64      `json:"total_lines"`
	ProcessedLines    int64      `json:"processed_lines"`
	Imported          int64      `json:"imported"`
	SkippedDuplicates int64      `json:"skipped_duplicates"`
	SkippedFiltered   int64      `json:"skipped_filtered"`
	ParseErrors       int64      `json:"parse_errors"`
	Error             *string    `json:"error,omitempty"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

func toJobDTO(job store.ImportJob) jobDTO {
	return jobDTO{
		ID:                job.ID.String(),
		ClientID:          job.ClientID.String(),
		Filename:          job.Filename,
		FileType:          string(job.FileType),
		Status:            string(job.Status),
		TotalLines:        job.Counters.TotalLines,
		ProcessedLines:    job.Counters.ProcessedLines,
		Imported:          job.Counters.Imported,
		SkippedDuplicates: job.Counters.SkippedDuplicates,
		SkippedFiltered:   job.Counters.SkippedFiltered,
		ParseErrors:       job.Counters.ParseErrors,
		Error:             job.ErrorMessage,
		StartedAt:         job.StartedAt,
		FinishedAt:        job.FinishedAt,
	}
}

// uploadLogs accepts a multipart log file, spools it to disk, sniffs the
// format and starts a background import. The response carries only the job
// id; progress is streamed separately.
func (s *Server) uploadLogs(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	tmpPath, err := s.spoolUpload(file)
	if err != nil {
		s.logger.Error("spool upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	fileType, err := sniffFileType(header.Filename, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.importer.SubmitLogFile(r.Context(), clientID, header.Filename, fileType, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		s.logger.Error("submit log import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start import")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID.String()})
}

// uploadReference synchronously replaces the client's reference URL set from
// a crawl-export CSV.
func (s *Server) uploadReference(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	job, count, err := s.importer.ImportReference(r.Context(), clientID, header.Filename, file)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":        job.ID.String(),
		"imported_urls": count,
	})
}

func (s *Server) listImports(w http.ResponseWriter, r *http.Request) {
	clientID, err := parseClientID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	jobs, err := s.jobs.ListJobs(ctx, clientID, limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list imports")
		return
	}
	dtos := make([]jobDTO, 0, len(jobs))
	for _, job := range jobs {
		dtos = append(dtos, toJobDTO(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": dtos})
}

// deleteJob removes an import job and every row it brought in. A still
// running job is canceled first.
func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if err := s.importer.DeleteJob(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("delete job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) spoolUpload(src multipart.File) (string, error) {
	dir := s.cfg.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return tmp.Name(), nil
}

// sniffFileType decides the import variant: .xlsx uploads are spreadsheets,
// everything else is classified from its first line.
func sniffFileType(filename, path string) (store.FileType, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return store.FileExcelLog, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReaderSize(io.LimitReader(f, sniffLineBytes), 64*1024)
	firstLine, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read upload: %w", err)
	}
	firstLine = strings.TrimRight(firstLine, "\r\n")
	if firstLine == "" {
		return "", errors.New("uploaded file is empty")
	}
	switch logparse.DetectFormat(firstLine) {
	case logparse.FormatCSVLog:
		return store.FileCSVLog, nil
	default:
		return store.FileRawLog, nil
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
