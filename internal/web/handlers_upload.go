package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/dynatable/internal/core"
)

// multipartMemory is how much of a form is buffered before spilling to disk.
const multipartMemory = 32 << 20

// formOverhead is allowed on top of the file size limit for boundaries and fields.
const formOverhead = 1 << 20

type uploadResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// handleUploadCSV parses the uploaded CSV and hands it to the dispatcher.
// It answers 202 as soon as the job is submitted; the outcome is delivered
// to the requester's email and recorded on the job.
func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("%w: limit is %d bytes", core.ErrFileTooLarge, maxSize))
			return
		}
		s.respondError(w, r, core.NewValidationError("invalid request body: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	table := r.FormValue("table_name")
	requester := r.FormValue("email")
	if table == "" || requester == "" {
		s.respondError(w, r, core.NewValidationError("table name and email are required"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, core.NewValidationError("no file provided"))
		return
	}
	defer file.Close()

	ds, err := s.svc.Importer.ParseCSV(file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	jobID, err := s.svc.Dispatcher.Submit(r.Context(), core.ImportRequest{
		Table:     table,
		Dataset:   ds,
		Requester: requester,
		RequestID: chimw.GetReqID(r.Context()),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		Message: "File uploaded successfully, processing started.",
		JobID:   jobID,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, found, err := s.svc.Dispatcher.Job(r.Context(), jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !found {
		respondNotFound(w, "Job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": job})
}

// handleListJobs lists a table's import jobs, newest first, with the current
// worker slot usage.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table_name")
	if table == "" {
		s.respondError(w, r, core.NewValidationError("table name is required"))
		return
	}

	jobs, err := s.svc.Dispatcher.Jobs(r.Context(), table)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []core.ImportJob{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":    jobs,
		"limiter": s.svc.Dispatcher.LimiterStatus(),
	})
}
