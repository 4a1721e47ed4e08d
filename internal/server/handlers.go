package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/rowgate/internal/errs"
	"github.com/koustreak/rowgate/internal/query"
	"github.com/koustreak/rowgate/internal/resource"
	"github.com/koustreak/rowgate/internal/schema"
)

// --- health & schema ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	tables, err := s.svc.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) refreshAll(w http.ResponseWriter, _ *http.Request) {
	s.svc.RefreshAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.svc.ListTables(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) describe(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Describe(r.Context(), tableParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.svc.Refresh(tableParam(r))
	w.WriteHeader(http.StatusNoContent)
}

// --- snapshots ---

var errNoArchive = errs.New(errs.ErrKindNotFound, "snapshot archive is not configured")

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, r, errNoArchive)
		return
	}
	infos, err := s.snapshots.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": infos})
}

func (s *Server) saveSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, r, errNoArchive)
		return
	}
	info, err := s.snapshots.Save(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, r, errNoArchive)
		return
	}
	doc, err := s.snapshots.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// --- records ---

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	opts, err := selectOptions(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := s.svc.List(r.Context(), tableParam(r), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	values, err := s.decodeObject(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.svc.Create(r.Context(), tableParam(r), values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"record": rec})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	t, key, err := s.keyOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.svc.Get(r.Context(), t.Name(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	t, key, err := s.keyOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := s.decodeObject(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Update(r.Context(), t.Name(), key, changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.NotFound() {
		writeError(w, r, notFound(t))
		return
	}
	rec, err := s.svc.Get(r.Context(), t.Name(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec, "rows_affected": res.RowsAffected})
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	t, key, err := s.keyOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Delete(r.Context(), t.Name(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.NotFound() {
		writeError(w, r, notFound(t))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func notFound(t *schema.Table) error {
	return &errs.Error{Kind: errs.ErrKindNotFound, Message: "record not found", Table: t.Name()}
}

func tableParam(r *http.Request) string {
	return pathParam(r, "table")
}

// pathParam returns the decoded value of a route parameter, so that table
// names and keys may contain escaped characters.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (s *Server) keyOf(r *http.Request) (*schema.Table, map[string]any, error) {
	t, err := s.svc.Describe(r.Context(), tableParam(r))
	if err != nil {
		return nil, nil, err
	}
	key, err := resource.ParseKey(t, pathParam(r, "key"))
	if err != nil {
		return nil, nil, err
	}
	return t, key, nil
}

// decodeObject reads a JSON object body. Numbers stay json.Number so that
// large integers survive until they are coerced to the column type.
func (s *Server) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return nil, errs.Newf(errs.ErrKindInvalidValue, "request body exceeds %d bytes", tooBig.Limit)
		case errors.Is(err, io.EOF):
			return nil, errs.New(errs.ErrKindInvalidValue, "request body must be a JSON object")
		}
		return nil, errs.Wrap(errs.ErrKindInvalidValue, "request body must be a JSON object", err)
	}
	if body == nil {
		return nil, errs.New(errs.ErrKindInvalidValue, "request body must be a JSON object")
	}
	if dec.More() {
		return nil, errs.New(errs.ErrKindInvalidValue, "request body must hold a single JSON object")
	}
	return body, nil
}

// filterOps maps the bracketed operator of a query parameter, as in
// ?age[gte]=21, to a builder operator.
var filterOps = map[string]string{
	"":      "=",
	"eq":    "=",
	"ne":    "!=",
	"lt":    "<",
	"lte":   "<=",
	"le":    "<=",
	"gt":    ">",
	"gte":   ">=",
	"ge":    ">=",
	"like":  "LIKE",
	"ilike": "ILIKE",
}

var reservedParams = map[string]bool{"sort": true, "order": true, "limit": true, "offset": true}

func selectOptions(params url.Values) (query.SelectOptions, error) {
	var opts query.SelectOptions

	opts.Sort = params.Get("sort")
	dir, err := query.ParseDirection(params.Get("order"))
	if err != nil {
		return opts, err
	}
	opts.Direction = dir

	if opts.Limit, err = intParam(params, "limit"); err != nil {
		return opts, err
	}
	if opts.Offset, err = intParam(params, "offset"); err != nil {
		return opts, err
	}

	names := make([]string, 0, len(params))
	for name := range params {
		if !reservedParams[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		col, op, err := splitFilter(name)
		if err != nil {
			return opts, err
		}
		for _, raw := range params[name] {
			f, err := filterFor(col, op, raw)
			if err != nil {
				return opts, err
			}
			opts.Filters = append(opts.Filters, f)
		}
	}
	return opts, nil
}

func splitFilter(name string) (string, string, error) {
	col, rest, ok := strings.Cut(name, "[")
	if !ok {
		return name, "", nil
	}
	op, ok := strings.CutSuffix(rest, "]")
	if !ok || col == "" {
		return "", "", errs.Newf(errs.ErrKindInvalidValue, "malformed filter parameter %q", name)
	}
	return col, strings.ToLower(op), nil
}

func filterFor(col, op, raw string) (query.Filter, error) {
	if op == "null" {
		isNull, err := strconv.ParseBool(raw)
		if err != nil {
			return query.Filter{}, errs.InvalidValue("", col, "null filter takes true or false")
		}
		if isNull {
			return query.Filter{Column: col, Op: "=", Value: nil}, nil
		}
		return query.Filter{Column: col, Op: "!=", Value: nil}, nil
	}

	sqlOp, ok := filterOps[op]
	if !ok {
		return query.Filter{}, errs.Newf(errs.ErrKindInvalidValue, "unsupported filter operator %q", op)
	}
	return query.Filter{Column: col, Op: sqlOp, Value: raw}, nil
}

func intParam(params url.Values, name string) (*int, error) {
	raw := params.Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errs.Newf(errs.ErrKindInvalidValue, "%s must be an integer, got %q", name, raw)
	}
	return &n, nil
}
