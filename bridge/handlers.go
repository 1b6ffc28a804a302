// Package bridge exposes the synchronizer, its streams and per-view
// selection controllers to an out-of-process UI over HTTP.
package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/voidstore/storesync/eventbus"
	"github.com/voidstore/storesync/fileinfo"
	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/selection"
	"github.com/voidstore/storesync/store"
	storesync "github.com/voidstore/storesync/sync"
	"github.com/voidstore/storesync/tree"
)

// DefaultHeartbeat is the SSE keepalive interval.
const DefaultHeartbeat = 30 * time.Second

// Options configures Handlers. Zero values select defaults.
type Options struct {
	// Keys is the shared key stream. Created when nil.
	Keys *eventbus.Topic[selection.Key]
	// Info serves /api/info. Created over the synchronizer when nil.
	Info *fileinfo.Service
	// Importer enables POST /api/folder when set.
	Importer  *storesync.Importer
	Layout    selection.Layout
	RowWidth  int
	Heartbeat time.Duration
}

// StatsResponse holds aggregate synchronizer statistics.
type StatsResponse struct {
	Rebuilds     int64                  `json:"rebuilds"`
	Nodes        int                    `json:"nodes"`
	InProgress   []storesync.StatusItem `json:"inProgress"`
	QueueLen     int                    `json:"queueLen"`
	RecentErrors []logging.Entry        `json:"recentErrors"`
}

// Handlers holds the HTTP handlers of the bridge.
type Handlers struct {
	sync     *storesync.Synchronizer
	keys     *eventbus.Topic[selection.Key]
	info     *fileinfo.Service
	importer *storesync.Importer
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandlers creates the bridge handlers over s.
func NewHandlers(s *storesync.Synchronizer, opts Options) *Handlers {
	if opts.Keys == nil {
		opts.Keys = eventbus.NewTopic(eventbus.WithQueue[selection.Key]())
	}
	if opts.Info == nil {
		opts.Info = fileinfo.New(s, 0)
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	return &Handlers{
		sync:     s,
		keys:     opts.Keys,
		info:     opts.Info,
		importer: opts.Importer,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Keys returns the shared key stream.
func (h *Handlers) Keys() *eventbus.Topic[selection.Key] { return h.keys }

// Router registers every route.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tree", h.HandleTree).Methods(http.MethodGet)
	api.HandleFunc("/dirs", h.HandleDirs).Methods(http.MethodGet)
	api.HandleFunc("/subdirs", h.HandleSubdirs).Methods(http.MethodGet)
	api.HandleFunc("/info", h.HandleInfo).Methods(http.MethodGet)
	api.HandleFunc("/info/tags", h.HandleTags).Methods(http.MethodPost)
	api.HandleFunc("/info/comments", h.HandleComments).Methods(http.MethodPost)
	api.HandleFunc("/events", h.HandleSSE).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.HandleStats).Methods(http.MethodGet)

	api.HandleFunc("/move", h.HandleMove).Methods(http.MethodPost)
	api.HandleFunc("/remove", h.HandleRemove).Methods(http.MethodPost)
	api.HandleFunc("/mkdir", h.HandleMkdir).Methods(http.MethodPost)
	api.HandleFunc("/file", h.HandleFile).Methods(http.MethodPost)
	api.HandleFunc("/save", h.HandleSave).Methods(http.MethodPost)
	api.HandleFunc("/decrypt", h.HandleDecrypt).Methods(http.MethodPost)
	api.HandleFunc("/folder", h.HandleFolder).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.HandleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/keys", h.HandleKeys).Methods(http.MethodPost)

	api.HandleFunc("/ws", h.HandleWS)
	r.Use(logRequests)
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Sub("bridge").Debug("HTTP", "method", r.Method, "path", r.URL.Path,
			"elapsed", time.Since(start).Round(time.Microsecond))
	})
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func (h *Handlers) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Router(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logging.Sub("bridge").Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// HandleTree handles GET /api/tree.
func (h *Handlers) HandleTree(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Tree())
}

// HandleDirs handles GET /api/dirs, the directories-only side tree.
func (h *Handlers) HandleDirs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tree.DirsOnly(h.sync.Tree()))
}

// HandleSubdirs handles GET /api/subdirs?path=<path>.
func (h *Handlers) HandleSubdirs(w http.ResponseWriter, r *http.Request) {
	p, ok := queryPath(w, r)
	if !ok {
		return
	}
	dirs, err := h.sync.ListSubdirectories(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"items": dirs})
}

// HandleInfo handles GET /api/info?path=<path>.
func (h *Handlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := queryPath(w, r)
	if !ok {
		return
	}
	node := tree.FindByPath(h.sync.Tree(), p)
	if node == nil {
		writeError(w, store.Wrap(store.OpMetadata, p, store.ErrNoSuchFile))
		return
	}
	info, err := h.info.Load(r.Context(), node)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// TagRequest is the body of POST /api/info/tags.
type TagRequest struct {
	Path   string `json:"path"`
	Tag    string `json:"tag"`
	Remove bool   `json:"remove"`
}

// HandleTags handles POST /api/info/tags.
func (h *Handlers) HandleTags(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decode(w, r, &req) || !validPath(w, req.Path) {
		return
	}
	var tags []string
	var err error
	if req.Remove {
		tags, err = h.info.RemoveTag(r.Context(), req.Path, req.Tag)
	} else {
		tags, err = h.info.AddTag(r.Context(), req.Path, req.Tag)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

// CommentsRequest is the body of POST /api/info/comments.
type CommentsRequest struct {
	Path     string `json:"path"`
	Comments string `json:"comments"`
}

// HandleComments handles POST /api/info/comments.
func (h *Handlers) HandleComments(w http.ResponseWriter, r *http.Request) {
	var req CommentsRequest
	if !decode(w, r, &req) || !validPath(w, req.Path) {
		return
	}
	if err := h.info.SaveComments(r.Context(), req.Path, req.Comments); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleStats handles GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Rebuilds:     h.sync.Rebuilds(),
		Nodes:        tree.CountNodes(h.sync.Tree()),
		InProgress:   h.sync.InProgress(),
		RecentErrors: logging.RecentErrors(),
	}
	if h.importer != nil {
		resp.QueueLen = h.importer.Queue().Len()
	}
	if resp.InProgress == nil {
		resp.InProgress = []storesync.StatusItem{}
	}
	if resp.RecentErrors == nil {
		resp.RecentErrors = []logging.Entry{}
	}
	writeJSON(w, http.StatusOK, resp)
}
