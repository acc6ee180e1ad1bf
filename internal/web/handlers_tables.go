package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/dynatable/internal/core"
)

type createTableRequest struct {
	TableName string     `json:"table_name"`
	Fields    columnList `json:"fields"`
}

// handleCreateTable creates a table from a name and its column definitions.
// Creating an existing table succeeds without changing it.
func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.TableName == "" || len(req.Fields) == 0 {
		s.respondError(w, r, core.NewValidationError("table name and fields are required"))
		return
	}

	schema := core.TableSchema{Name: req.TableName, Columns: req.Fields}
	if err := s.svc.Schema.CreateTable(r.Context(), schema); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{
		Message: fmt.Sprintf("Table %s created successfully", req.TableName),
	})
}

type addColumnRequest struct {
	TableName  string `json:"table_name"`
	ColumnName string `json:"column_name"`
	ColumnType string `json:"column_type"`
}

func (s *Server) handleAddColumn(w http.ResponseWriter, r *http.Request) {
	var req addColumnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.TableName == "" || req.ColumnName == "" || req.ColumnType == "" {
		s.respondError(w, r, core.NewValidationError("all fields are required"))
		return
	}

	col := core.ColumnDef{Name: req.ColumnName, Type: req.ColumnType}
	if err := s.svc.Schema.AddColumn(r.Context(), req.TableName, col); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Column %s added to %s successfully", req.ColumnName, req.TableName),
	})
}

type tableRequest struct {
	TableName string `json:"table_name"`
}

// handleDeleteTable drops a table. The name comes from the body or, failing
// that, the table_name query parameter.
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.TableName == "" {
		req.TableName = r.URL.Query().Get("table_name")
	}
	if req.TableName == "" {
		s.respondError(w, r, core.NewValidationError("table name is required"))
		return
	}

	if err := s.svc.Schema.DropTable(r.Context(), req.TableName); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Table %s deleted successfully", req.TableName),
	})
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table_name")
	if table == "" {
		s.respondError(w, r, core.NewValidationError("table name is required"))
		return
	}

	schema, err := s.svc.Schema.Describe(r.Context(), table)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !schema.Exists() {
		s.respondError(w, r, fmt.Errorf("%w: %s", core.ErrTableNotFound, table))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": schema})
}
