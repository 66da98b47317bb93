package hypermedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/tailbits/hypermedia/codec"
	"github.com/tailbits/hypermedia/model"
)

// ProblemMediaType is used for error bodies that are not JSON:API.
const ProblemMediaType = "application/problem+json"

// Responder writes encoded documents and errors to an HTTP response.
type Responder interface {
	Respond(ctx context.Context, w http.ResponseWriter, body []byte, f codec.Format, status int) error
	RespondError(ctx context.Context, w http.ResponseWriter, err error, f codec.Format) error
}

var _ Responder = (*HTTPResponder)(nil)

type HTTPResponder struct {
	Log *slog.Logger
}

func NewHTTPResponder(log *slog.Logger) *HTTPResponder {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPResponder{Log: log}
}

func (r *HTTPResponder) Respond(ctx context.Context, w http.ResponseWriter, body []byte, f codec.Format, status int) error {
	w.Header().Set("Content-Type", f.MediaType())
	w.WriteHeader(status)

	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}
	return nil
}

// RespondError writes err as a JSON:API error document when f is JSON:API and
// as a problem document otherwise.
func (r *HTTPResponder) RespondError(ctx context.Context, w http.ResponseWriter, err error, f codec.Format) error {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		r.Log.ErrorContext(ctx, "request failed", "error", err)
	}

	var (
		doc         any
		contentType = ProblemMediaType
	)
	if f != nil && f.Name() == codec.JSONAPI.Name() {
		doc = jsonAPIErrors(err, status)
		contentType = codec.JSONAPIMediaType
	} else {
		doc = problem(err, status)
	}

	body, mErr := json.Marshal(doc)
	if mErr != nil {
		http.Error(w, mErr.Error(), http.StatusInternalServerError)
		return fmt.Errorf("failed to encode error document: %w", mErr)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, wErr := w.Write(body); wErr != nil {
		return fmt.Errorf("failed to write error document: %w", wErr)
	}
	return nil
}

// StatusOf maps the errors of this module to HTTP statuses.
func StatusOf(err error) int {
	var (
		validation  model.ValidationError
		unknownType *model.UnknownTypeError
		notFound    *model.RelationNotFoundError
		unresolved  *model.UnresolvableRelationError
		unsupported *model.UnsupportedFormatError
		malformed   *model.MalformedDocumentError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.As(err, &unknownType), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unresolved), errors.Is(err, ErrInvalidCursor), errors.Is(err, ErrInvalidPageSize):
		return http.StatusBadRequest
	case errors.As(err, &unsupported):
		return http.StatusNotAcceptable
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}

func problem(err error, status int) map[string]any {
	doc := map[string]any{
		"title":  http.StatusText(status),
		"status": status,
	}

	var validation model.ValidationError
	if errors.As(err, &validation) {
		doc["errors"] = validation.Errors
		return doc
	}
	doc["detail"] = publicMessage(err, status)
	return doc
}

type jsonAPIError struct {
	Status string            `json:"status"`
	Title  string            `json:"title"`
	Detail string            `json:"detail,omitempty"`
	Source map[string]string `json:"source,omitempty"`
}

func jsonAPIErrors(err error, status int) map[string]any {
	title := http.StatusText(status)

	var validation model.ValidationError
	if errors.As(err, &validation) {
		errs := make([]jsonAPIError, 0, len(validation.Errors))
		for _, fe := range validation.Errors {
			e := jsonAPIError{Status: strconv.Itoa(status), Title: title, Detail: fe.Message}
			if field := fe.Field(); field != "" && field != "(root)" {
				e.Source = map[string]string{"pointer": "/data/attributes/" + strings.ReplaceAll(field, ".", "/")}
			}
			errs = append(errs, e)
		}
		return map[string]any{"errors": errs}
	}

	return map[string]any{"errors": []jsonAPIError{{
		Status: strconv.Itoa(status),
		Title:  title,
		Detail: publicMessage(err, status),
	}}}
}

// Negotiate picks the format for an Accept header. An empty header, a
// wildcard or plain JSON select HAL.
func Negotiate(accept string) (codec.Format, error) {
	if strings.TrimSpace(accept) == "" {
		return codec.HAL, nil
	}

	var (
		best  codec.Format
		bestQ = -1.0
	)
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if raw, ok := params["q"]; ok {
			if q, err = strconv.ParseFloat(raw, 64); err != nil {
				continue
			}
		}
		if q <= 0 {
			continue
		}

		var f codec.Format
		switch mediaType {
		case "*/*", "application/*", "application/json":
			f = codec.HAL
		default:
			if f, err = codec.ByMediaType(mediaType); err != nil {
				continue
			}
		}
		if q > bestQ {
			best, bestQ = f, q
		}
	}

	if best == nil {
		return nil, &model.UnsupportedFormatError{Format: accept}
	}
	return best, nil
}

// ServeResource renders a resource for an HTTP request. The "embed" query
// parameter holds a comma separated list of relations to inline.
func (a *API) ServeResource(w http.ResponseWriter, r *http.Request, rsp Responder, typ, id string) {
	ctx := r.Context()

	f, err := Negotiate(r.Header.Get("Accept"))
	if err != nil {
		a.respondError(ctx, w, rsp, err, codec.HAL)
		return
	}

	var opts []RenderOption
	if embed := r.URL.Query().Get("embed"); embed != "" {
		opts = append(opts, Embed(splitList(embed)...))
	}

	body, err := a.Render(ctx, typ, id, f, opts...)
	if err != nil {
		a.respondError(ctx, w, rsp, err, f)
		return
	}
	if err := rsp.Respond(ctx, w, body, f, http.StatusOK); err != nil {
		a.log.ErrorContext(ctx, "respond", "error", err)
	}
}

// ServeRelated renders the target of a to-one relation, or one page of a
// to-many relation, for an HTTP request. Page cursor and size come from the
// query parameters named by the API's PageRels.
func (a *API) ServeRelated(w http.ResponseWriter, r *http.Request, rsp Responder, typ, id, relation string) {
	ctx := r.Context()

	f, err := Negotiate(r.Header.Get("Accept"))
	if err != nil {
		a.respondError(ctx, w, rsp, err, codec.HAL)
		return
	}

	var opts []RenderOption
	if embed := r.URL.Query().Get("embed"); embed != "" {
		opts = append(opts, Embed(splitList(embed)...))
	}

	var body []byte
	if a.isToOne(typ, relation) {
		body, err = a.RenderTarget(ctx, typ, id, relation, f, opts...)
	} else {
		cursor, size := a.linkCtx.PageRels.ParseQuery(r.URL.Query(), a.pageSize)
		opts = append(opts, WithCursor(cursor), WithPageSize(size))
		body, err = a.RenderRelated(ctx, typ, id, relation, f, opts...)
	}
	if err != nil {
		a.respondError(ctx, w, rsp, err, f)
		return
	}
	if err := rsp.Respond(ctx, w, body, f, http.StatusOK); err != nil {
		a.log.ErrorContext(ctx, "respond", "error", err)
	}
}

func (a *API) isToOne(typ, relation string) bool {
	def, ok := a.GetType(typ)
	if !ok {
		return false
	}
	rd, ok := def.Relation(relation)
	return ok && rd.Cardinality == model.One
}

func (a *API) respondError(ctx context.Context, w http.ResponseWriter, rsp Responder, err error, f codec.Format) {
	if rErr := rsp.RespondError(ctx, w, err, f); rErr != nil {
		a.log.ErrorContext(ctx, "respond error", "error", rErr, "cause", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
