package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tomnomnom/linkheader"

	"github.com/golden-vcr/openapi-go/apierror"
	"github.com/golden-vcr/openapi-go/apilog"
	"github.com/golden-vcr/openapi-go/entities"
	"github.com/golden-vcr/openapi-go/entry"
	"github.com/golden-vcr/openapi-go/hmac"
)

// EntitiesPath is the prefix of every entity route
const EntitiesPath = "/openapi/v1/entities"

type Config struct {
	Verifier     hmac.Verifier
	Store        entities.Store
	Recorder     apilog.Recorder
	Grants       Grants
	Allowlist    Allowlist
	MaxBodyBytes int64
}

type Server struct {
	mux   *http.ServeMux
	store entities.Store
}

func NewServer(cfg Config) *Server {
	if cfg.Recorder == nil {
		cfg.Recorder = apilog.NopRecorder{}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		mux:   http.NewServeMux(),
		store: cfg.Store,
	}
	requireSignature := RequireSignature(cfg.Verifier, cfg.Recorder, cfg.Allowlist, cfg.MaxBodyBytes)
	requireEntityAccess := RequireEntityAccess(cfg.Grants)
	guard := func(h http.HandlerFunc) http.Handler {
		return requireSignature(requireEntityAccess(h))
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET "+EntitiesPath+"/{table}", guard(s.handleList))
	s.mux.Handle("GET "+EntitiesPath+"/{table}/{id}", guard(s.handleGet))
	s.mux.Handle("POST "+EntitiesPath+"/{table}", guard(s.handleCreate))
	s.mux.Handle("PUT "+EntitiesPath+"/{table}/{id}", guard(s.handleUpdate))
	s.mux.Handle("DELETE "+EntitiesPath+"/{table}/{id}", guard(s.handleDelete))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	apierror.WriteJSON(w, http.StatusOK, apierror.Envelope{Code: http.StatusOK, Message: "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	query := r.URL.Query()

	opts := entities.ListOptions{Filters: make(map[string]string)}
	for k, values := range query {
		if len(values) == 0 {
			continue
		}
		switch k {
		case "page":
			opts.Page, _ = strconv.Atoi(values[0])
		case "pageSize":
			opts.PageSize, _ = strconv.Atoi(values[0])
		default:
			opts.Filters[k] = values[0]
		}
	}
	opts = opts.Normalize()

	records, total, err := s.store.List(r.Context(), table, opts)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	entry.Logger(r.Context()).Debug("Listed entities", "table", table, "page", opts.Page, "total", total)

	w.Header().Set("link", paginationLinks(r, opts.Page, opts.PageSize, total).String())
	apierror.WriteJSON(w, http.StatusOK, apierror.Envelope{
		Code:    http.StatusOK,
		Message: "success",
		Data:    records,
		Total:   &total,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.store.Get(r.Context(), r.PathValue("table"), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeRecord(w, http.StatusOK, record)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	fields, err := parseFields(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.store.Create(r.Context(), r.PathValue("table"), fields)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeRecord(w, http.StatusCreated, record)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := parseFields(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.store.Update(r.Context(), r.PathValue("table"), id, fields)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeRecord(w, http.StatusOK, record)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), r.PathValue("table"), id); err != nil {
		writeStoreError(w, r, err)
		return
	}
	apierror.WriteJSON(w, http.StatusOK, apierror.Envelope{Code: http.StatusOK, Message: "success"})
}

func parseId(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apierror.New(apierror.ErrParamInvalid, "id must be a positive integer")
	}
	return id, nil
}

// parseFields decodes the request body as a single JSON object
func parseFields(r *http.Request) (map[string]any, error) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, apierror.New(apierror.ErrParamInvalid, "Request body must be a JSON object")
	}
	if fields == nil {
		return nil, apierror.New(apierror.ErrParamMissing, "Request body must be a JSON object")
	}
	return fields, nil
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, storeError(err))
}

func writeRecord(w http.ResponseWriter, status int, record entities.Record) {
	apierror.WriteJSON(w, status, apierror.Envelope{
		Code:    status,
		Message: "success",
		Data:    record,
	})
}

// paginationLinks builds the Link header for a page of results. Links carry the same
// query string as the request, re-encoded in canonical order, so that they can be
// signed and followed as-is.
func paginationLinks(r *http.Request, page, pageSize int, total int64) linkheader.Links {
	lastPage := int((total + int64(pageSize) - 1) / int64(pageSize))
	if lastPage < 1 {
		lastPage = 1
	}

	query, err := hmac.FlattenQuery(r.URL.Query())
	if err != nil {
		query = map[string]string{}
	}
	link := func(p int, rel string) linkheader.Link {
		query["page"] = strconv.Itoa(p)
		u := url.URL{Path: r.URL.Path, RawQuery: hmac.CanonicalQuery(query)}
		return linkheader.Link{URL: u.String(), Rel: rel}
	}

	links := linkheader.Links{}
	if page > 1 {
		links = append(links, link(1, "first"), link(page-1, "prev"))
	}
	if page < lastPage {
		links = append(links, link(page+1, "next"))
	}
	links = append(links, link(lastPage, "last"))
	return links
}
