package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/copresent/copresent/internal/hub"
	"github.com/copresent/copresent/store"
	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
)

const (
	hasPres = 1 << iota
)

// reqCtx is the context injected into every request.
type reqCtx struct {
	app  *App
	meta *store.Presentation
}

// jsonResp is the envelope for all JSON API responses.
type jsonResp struct {
	Error *string     `json:"error"`
	Data  interface{} `json:"data"`
}

// tpl is the envelope for all HTML template executions.
type tpl struct {
	Config *hub.Config
	Data   tplData
}

type tplData struct {
	Title        string
	Description  string
	Presentation interface{}
}

// reqHandshake is the first frame expected on a fresh WS connection:
// either a session.create or a session.join.
type reqHandshake struct {
	Type string `json:"type"`
	Data struct {
		ID       string `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"data"`
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	return true
}}

// handleIndex renders the homepage.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)
	respondHTML("index", tplData{
		Title: app.cfg.Name,
	}, http.StatusOK, w, app)
}

// handlePresentationPage renders the presentation page.
func handlePresentationPage(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	if ctx.meta == nil {
		respondHTML("presentation-not-found", tplData{}, http.StatusNotFound, w, app)
		return
	}

	// Disable browser caching.
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	respondHTML("presentation", tplData{
		Title:        app.cfg.Name,
		Presentation: ctx.meta,
	}, http.StatusOK, w, app)
}

// handleGetPresentation responds with a presentation's metadata.
func handleGetPresentation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context().Value("ctx").(*reqCtx)

	if ctx.meta == nil {
		respondJSON(w, nil, hub.ErrNotFound, http.StatusNotFound)
		return
	}
	respondJSON(w, ctx.meta, nil, http.StatusOK)
}

// handleWS handles incoming connections. The first frame decides
// whether the connection creates a fresh presentation (joining as
// Creator) or joins an existing one (joining as Viewer).
func handleWS(w http.ResponseWriter, r *http.Request) {
	var (
		ctx = r.Context().Value("ctx").(*reqCtx)
		app = ctx.app
	)

	// Create the WS connection.
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.logger.Printf("Websocket upgrade failed: %s: %v", r.RemoteAddr, err)
		return
	}

	ws.SetReadDeadline(time.Now().Add(app.cfg.WSTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return
	}
	ws.SetReadDeadline(time.Time{})

	var req reqHandshake
	if err := json.Unmarshal(raw, &req); err != nil {
		rejectWS(ws, hub.ErrInvalidRequest)
		return
	}

	nick := strings.TrimSpace(req.Data.Nickname)
	if nick == "" || len(nick) > 64 {
		rejectWS(ws, hub.ErrInvalidRequest)
		return
	}

	var (
		pres *hub.Presentation
		role hub.Role
	)
	switch req.Type {
	case hub.TypeSessionCreate:
		pres, err = app.hub.CreatePresentation(nick)
		role = hub.RoleCreator
	case hub.TypeSessionJoin:
		pres, err = app.hub.ActivatePresentation(req.Data.ID)
		role = hub.RoleViewer
	default:
		err = hub.ErrInvalidRequest
	}
	if err != nil {
		rejectWS(ws, err)
		return
	}

	connID, err := hub.GenerateGUID(24)
	if err != nil {
		app.logger.Printf("error generating connection ID: %v", err)
		rejectWS(ws, errors.New("error generating connection ID"))
		return
	}

	// Create a new peer instance and add it to the presentation.
	pres.AddPeer(connID, nick, role, ws)
}

// rejectWS reports a handshake failure to the connecting client and
// closes the connection.
func rejectWS(ws *websocket.Conn, err error) {
	ws.WriteMessage(websocket.TextMessage, hub.ErrorPayload(err))
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Time{})
	ws.Close()
}

// respondJSON responds to an HTTP request with a generic payload or an error.
func respondJSON(w http.ResponseWriter, data interface{}, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	out := jsonResp{Data: data}
	if err != nil {
		e := err.Error()
		out.Error = &e
	}
	b, err := json.Marshal(out)
	if err != nil {
		logger.Printf("error marshalling JSON response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Write(b)
}

// respondHTML responds to an HTTP request with the HTML output of a given template.
func respondHTML(tplName string, data tplData, statusCode int, w http.ResponseWriter, app *App) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if statusCode > 0 {
		w.WriteHeader(statusCode)
	}

	err := app.tpl.ExecuteTemplate(w, tplName, tpl{
		Config: app.cfg,
		Data:   data,
	})
	if err != nil {
		app.logger.Printf("error rendering template %s: %s", tplName, err)
		w.Write([]byte("error rendering template"))
	}
}

// wrap is a middleware that attaches the app and presentation metadata
// to handlers.
func wrap(next http.HandlerFunc, app *App, opts uint8) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := &reqCtx{app: app}

		// Look up the presentation's metadata in the store.
		if opts&hasPres != 0 {
			// If the presentation's not found, req.meta stays nil in
			// the target handler. It's the handler's responsibility
			// to respond with an error, API or HTML.
			id := chi.URLParam(r, "presentationID")
			meta, err := app.hub.Store.GetPresentation(id)
			if err == nil {
				req.meta = &meta
			}
		}

		// Attach the request context.
		ctx := context.WithValue(r.Context(), "ctx", req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
