package api

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

// gotapiMethods are the methods routed to the dispatcher.
var gotapiMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

var gotapiPatterns = []string{
	"/{api}/{profile}",
	"/{api}/{profile}/{attribute}",
	"/{api}/{profile}/{interface}/{attribute}",
}

// multipartMemory is how much of a multipart body is kept in memory; the rest
// spills to temp files that are removed after the request.
const multipartMemory = 8 << 20

// buildRequest turns the HTTP request into a protocol.Request. Query values
// come first; PUT and POST body fields overwrite them. Only the first value
// of a repeated key is kept. On failure it returns the HTTP status to answer with.
func (s *Server) buildRequest(w http.ResponseWriter, r *http.Request) (*protocol.Request, int, error) {
	req := &protocol.Request{
		Method:    r.Method,
		API:       chi.URLParam(r, "api"),
		Profile:   chi.URLParam(r, "profile"),
		Interface: chi.URLParam(r, "interface"),
		Attribute: chi.URLParam(r, "attribute"),
		Params:    protocol.Params{},
	}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			req.Params[k] = vs[0]
		}
	}

	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		return req, 0, nil
	}

	body, err := s.bodyParams(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, err
		}
		return nil, http.StatusBadRequest, err
	}
	req.Params.Merge(body)
	return req, 0, nil
}

// bodyParams decodes multipart or urlencoded form fields. Uploaded files are
// ignored. Other content types contribute nothing.
func (s *Server) bodyParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return nil, nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, fmt.Errorf("invalid content type %q: %w", ct, err)
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var values map[string][]string
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, fmt.Errorf("parse multipart body: %w", err)
		}
		defer r.MultipartForm.RemoveAll()
		values = r.MultipartForm.Value
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form body: %w", err)
		}
		values = r.PostForm
	default:
		return nil, nil
	}

	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out, nil
}
