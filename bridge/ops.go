package bridge

import (
	"net/http"

	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/selection"
)

// MoveRequest is the body of POST /api/move.
type MoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PathRequest is the body of POST /api/remove and /api/mkdir.
type PathRequest struct {
	Path string `json:"path"`
}

// FileRequest is the body of POST /api/file and /api/save.
type FileRequest struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

// DecryptRequest is the body of POST /api/decrypt.
type DecryptRequest struct {
	Paths []string `json:"paths"`
	Dest  string   `json:"dest"`
}

// FolderRequest is the body of POST /api/folder.
type FolderRequest struct {
	FSDir    string `json:"fsDir"`
	StoreDir string `json:"storeDir"`
}

// KeyRequest is the body of POST /api/keys.
type KeyRequest struct {
	Key string `json:"key"`
}

// HandleMove handles POST /api/move.
func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) || !validPath(w, req.From) || !validPath(w, req.To) {
		return
	}
	logging.Sub("bridge").Info("HTTP move", "from", req.From, "to", req.To)
	if err := h.sync.Move(r.Context(), req.From, req.To); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleRemove handles POST /api/remove. Confirmation is the caller's job.
func (h *Handlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) || !validPath(w, req.Path) {
		return
	}
	logging.Sub("bridge").Info("HTTP remove", "path", req.Path)
	if err := h.sync.Remove(r.Context(), req.Path, nil); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleMkdir handles POST /api/mkdir.
func (h *Handlers) HandleMkdir(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decode(w, r, &req) || !validPath(w, req.Path) {
		return
	}
	if err := h.sync.CreateDir(r.Context(), req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleFile handles POST /api/file.
func (h *Handlers) HandleFile(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if !decode(w, r, &req) || !validPath(w, req.Path) {
		return
	}
	if err := h.sync.CreateFile(r.Context(), req.Path, []byte(req.Data)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleSave handles POST /api/save.
func (h *Handlers) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if !decode(w, r, &req) || !validPath(w, req.Path) {
		return
	}
	if err := h.sync.Save(r.Context(), req.Path, []byte(req.Data)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleDecrypt handles POST /api/decrypt, exporting paths into a local
// directory.
func (h *Handlers) HandleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req DecryptRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Dest == "" || len(req.Paths) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "paths and dest are required")
		return
	}
	for _, p := range req.Paths {
		if !validPath(w, p) {
			return
		}
	}
	written, err := h.sync.Decrypt(r.Context(), req.Paths, req.Dest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"written": written})
}

// HandleFolder handles POST /api/folder, queueing a local folder import.
func (h *Handlers) HandleFolder(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "import not enabled")
		return
	}
	var req FolderRequest
	if !decode(w, r, &req) || !validPath(w, req.StoreDir) {
		return
	}
	if req.FSDir == "" {
		writeErrorMessage(w, http.StatusBadRequest, "fsDir is required")
		return
	}
	n, err := h.importer.AddFolder(r.Context(), req.FSDir, req.StoreDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}

// HandleRefresh handles POST /api/refresh and waits for the rebuild.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// HandleKeys handles POST /api/keys, fanning a key out to every view.
func (h *Handlers) HandleKeys(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !decode(w, r, &req) {
		return
	}
	key, ok := selection.ParseKey(req.Key)
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "unknown key: "+req.Key)
		return
	}
	h.keys.Publish(key)
	writeOK(w)
}
