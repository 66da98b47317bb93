package hypermedia

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tailbits/hypermedia/model"
)

// Routes returns a router serving every registered type:
//
//	GET /{type}/{id}             the resource
//	GET /{type}/{id}/{relation}  one page of a to-many relation
//
// Mount it under the base URL of the API's link context.
func (a *API) Routes(rsp Responder) chi.Router {
	if rsp == nil {
		rsp = NewHTTPResponder(a.log)
	}

	r := chi.NewRouter()
	r.Get("/{type}/{id}", func(w http.ResponseWriter, req *http.Request) {
		typ := chi.URLParam(req, "type")
		if !a.HasType(typ) {
			a.notFound(w, req, rsp, typ)
			return
		}
		a.ServeResource(w, req, rsp, typ, chi.URLParam(req, "id"))
	})
	r.Get("/{type}/{id}/{relation}", func(w http.ResponseWriter, req *http.Request) {
		typ := chi.URLParam(req, "type")
		if !a.HasType(typ) {
			a.notFound(w, req, rsp, typ)
			return
		}
		a.ServeRelated(w, req, rsp, typ, chi.URLParam(req, "id"), chi.URLParam(req, "relation"))
	})
	return r
}

func (a *API) notFound(w http.ResponseWriter, req *http.Request, rsp Responder, typ string) {
	f, _ := Negotiate(req.Header.Get("Accept"))
	a.respondError(req.Context(), w, rsp, &model.UnknownTypeError{Type: typ}, f)
}
