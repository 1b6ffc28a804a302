package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voidstore/storesync/eventbus"
	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/selection"
	"github.com/voidstore/storesync/store"
)

const writeWait = 10 * time.Second

// Message is one request from a view.
type Message struct {
	Type   string `json:"type"`
	Key    string `json:"key,omitempty"`
	Path   string `json:"path,omitempty"`
	Target string `json:"target,omitempty"`
	Name   string `json:"name,omitempty"`
	Shift  bool   `json:"shift,omitempty"`
	Ctrl   bool   `json:"ctrl,omitempty"`
	Down   bool   `json:"down,omitempty"`
}

// Reply is one message pushed to a view.
type Reply struct {
	Type       string                `json:"type"`
	State      *selection.State      `json:"state,omitempty"`
	Activation *selection.Activation `json:"activation,omitempty"`
	Moves      []selection.Move      `json:"moves,omitempty"`
	Path       string                `json:"path,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// HandleWS handles GET /api/ws. Each connection gets its own selection
// controller following the shared tree and key streams; it is closed when
// the connection ends.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	l := logging.Sub("bridge")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states := eventbus.NewTopic[selection.State]()
	stateSub := states.Subscribe()
	ctrl := selection.New(h.sync, selection.Options{
		Layout:   h.opts.Layout,
		RowWidth: h.opts.RowWidth,
		States:   states,
	})
	if err := ctrl.Attach(ctx, h.sync.Trees(), h.keys); err != nil {
		l.Error("attach controller failed", "err", err)
		return
	}
	defer ctrl.Close()

	replies := make(chan Reply, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer stateSub.Cancel()
		for {
			var out Reply
			select {
			case <-ctx.Done():
				return
			case st, ok := <-stateSub.C():
				if !ok {
					return
				}
				out = Reply{Type: "state", State: &st}
			case out = <-replies:
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteJSON(out); err != nil {
				l.Debug("websocket write failed", "err", err)
				cancel()
				return
			}
		}
	}()

	l.Info("view connected", "remote", r.RemoteAddr)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Debug("websocket read ended", "err", err)
			}
			break
		}
		reply, ok := h.dispatch(ctx, ctrl, msg)
		if !ok {
			continue
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	cancel()
	<-writerDone
	l.Info("view disconnected", "remote", r.RemoteAddr)
}

// dispatch applies msg to ctrl. State changes reach the view through the
// state stream; only direct results are returned as replies.
func (h *Handlers) dispatch(ctx context.Context, ctrl *selection.Controller, msg Message) (Reply, bool) {
	fail := func(err error) (Reply, bool) {
		return Reply{Type: "error", Error: store.Message(err)}, true
	}

	switch msg.Type {
	case "key":
		switch msg.Key {
		case "up":
			ctrl.CursorUp()
		case "down":
			ctrl.CursorDown()
		default:
			key, ok := selection.ParseKey(msg.Key)
			if !ok {
				return Reply{Type: "error", Error: "unknown key: " + msg.Key}, true
			}
			ctrl.HandleKey(key)
		}
	case "shiftStep":
		if msg.Key == "left" {
			ctrl.ShiftStep(-1)
		} else {
			ctrl.ShiftStep(1)
		}
	case "click":
		if !ctrl.ClickOn(msg.Path, selection.Modifiers{Shift: msg.Shift, Ctrl: msg.Ctrl}) {
			return Reply{Type: "error", Error: "not in this directory: " + msg.Path}, true
		}
	case "path":
		ctrl.SetPath(msg.Path)
	case "selectAll":
		ctrl.SelectAll()
	case "esc":
		ctrl.Esc()
	case "shift":
		ctrl.SetShift(msg.Down)
	case "ctrl":
		ctrl.SetCtrl(msg.Down)
	case "enter":
		act := ctrl.Enter()
		return Reply{Type: "activation", Activation: &act}, true
	case "dragEnter":
		ctrl.DragEnter()
	case "dragLeave":
		ctrl.DragLeave()
	case "drop":
		moves, err := ctrl.Drop(ctx, msg.Target)
		if err != nil {
			return fail(err)
		}
		return Reply{Type: "moves", Moves: moves}, true
	case "rename":
		if err := ctrl.Rename(ctx, msg.Path, msg.Name); err != nil {
			return fail(err)
		}
	case "newFile", "newDir":
		create := ctrl.NewFile
		if msg.Type == "newDir" {
			create = ctrl.NewDir
		}
		p, err := create(ctx, msg.Name)
		if err != nil {
			return fail(err)
		}
		return Reply{Type: "created", Path: p}, true
	case "remove":
		if err := ctrl.RemoveSelected(ctx, nil); err != nil {
			return fail(err)
		}
	default:
		return Reply{Type: "error", Error: "unknown message: " + msg.Type}, true
	}
	return Reply{}, false
}
