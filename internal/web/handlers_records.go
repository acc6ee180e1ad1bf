package web

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/dynatable/internal/core"
)

type recordRequest struct {
	TableName string         `json:"table_name"`
	ID        json.Number    `json:"id"`
	Data      map[string]any `json:"data"`
}

func (s *Server) handleInsertRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.TableName == "" || req.Data == nil {
		s.respondError(w, r, core.NewValidationError("table name and data are required"))
		return
	}

	rec, err := s.svc.Records.Insert(r.Context(), req.TableName, req.Data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "Record inserted successfully", Data: rec})
}

// recordsPage is the get-records response.
type recordsPage struct {
	Data  []core.Record `json:"data"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// handleGetRecords returns one page of records plus the total matching count.
func (s *Server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table_name")
	if table == "" {
		s.respondError(w, r, core.NewValidationError("table name is required"))
		return
	}

	spec, err := parseQuerySpec(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := r.Context()
	records, err := s.svc.Records.Query(ctx, table, spec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	total, err := s.svc.Records.Count(ctx, table, spec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if records == nil {
		records = []core.Record{}
	}
	writeJSON(w, http.StatusOK, recordsPage{Data: records, Total: total, Page: spec.Page, Limit: spec.Limit})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.TableName == "" || req.Data == nil {
		s.respondError(w, r, core.NewValidationError("table name, id and data are required"))
		return
	}
	id, err := recordID(req.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rec, err := s.svc.Records.Update(r.Context(), req.TableName, id, req.Data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rec == nil {
		respondNotFound(w, "Record")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Record updated successfully", Data: rec})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.TableName == "" {
		s.respondError(w, r, core.NewValidationError("table name and id are required"))
		return
	}
	id, err := recordID(req.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	deleted, found, err := s.svc.Records.Delete(r.Context(), req.TableName, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !found {
		respondNotFound(w, "Record")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Record deleted successfully",
		Data:    map[string]int64{"id": deleted},
	})
}
