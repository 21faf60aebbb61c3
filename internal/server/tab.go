package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wsx4588588/canlog-frontend/internal/api"
	"github.com/wsx4588588/canlog-frontend/internal/models"
	"github.com/wsx4588588/canlog-frontend/internal/query"
	"github.com/wsx4588588/canlog-frontend/internal/session"
	"github.com/wsx4588588/canlog-frontend/internal/upload"
)

const (
	recentUploads = 20
	// headroom over the image limit for base64 and the JSON envelope
	readLimitSlack = 64 << 10
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// tab is one websocket connection and the state of the browser tab behind it.
type tab struct {
	id     string
	conn   *websocket.Conn
	server *Server
	client *api.Client
	logger *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once

	writeMu sync.Mutex

	session *session.Session
	query   *query.Synchronizer
	upload  *upload.Flow
}

func (s *Server) newTab(conn *websocket.Conn, cookies []*http.Cookie) *tab {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tab{
		id:     uuid.New().String(),
		conn:   conn,
		server: s,
		client: s.api.WithCookies(cookies),
		ctx:    ctx,
		cancel: cancel,
	}
	t.logger = s.logger.With(zap.String("tab_id", t.id))

	t.session = session.New(t.client, t.logger)
	t.query = query.New(t.client, s.opts.PageSize, t.logger, func(st query.State) {
		t.send("list", st)
	})
	t.upload = upload.NewFlow(t.client, s.db, s.opts.Upload, t.logger, t.onUploadStatus)
	return t
}

func (t *tab) run() {
	defer t.close()

	maxBytes := t.server.opts.Upload.MaxBytes
	if maxBytes <= 0 {
		maxBytes = upload.DefaultMaxBytes
	}
	t.conn.SetReadLimit(int64(base64.StdEncoding.EncodedLen(int(maxBytes))) + readLimitSlack)

	t.logger.Debug("Tab connected")
	t.start()

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("Error reading message", zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			t.logger.Debug("Error parsing message", zap.Error(err))
			t.sendError("Invalid message format")
			continue
		}
		t.handle(msg)
	}
}

// start runs the session check and the first list fetch side by side.
func (t *tab) start() {
	t.goAsync(func() {
		var g errgroup.Group
		g.Go(func() error {
			st := t.session.Load(t.ctx)
			t.send("auth", st)
			if st.Error != "" {
				return fmt.Errorf("session check: %s", st.Error)
			}
			return nil
		})
		g.Go(func() error {
			t.query.Sync(t.ctx)
			t.query.Wait()
			if st := t.query.Snapshot(); st.Error != "" {
				return fmt.Errorf("first list fetch: %s", st.Error)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			t.logger.Warn("Tab started degraded", zap.Error(err))
			return
		}
		t.logger.Debug("Tab ready")
	})
}

func (t *tab) close() {
	t.closeOnce.Do(func() {
		t.cancel()
		t.conn.Close()
		t.query.Close()
		t.upload.Close()
		t.wg.Wait()
		t.logger.Debug("Tab closed")
	})
}

func (t *tab) handle(msg inbound) {
	switch msg.Type {
	case "search_input":
		var d struct {
			Text string `json:"text"`
		}
		if t.decode(msg, &d) {
			t.query.SetSearchDraft(d.Text)
		}
	case "search_commit":
		var d struct {
			Text *string `json:"text"`
		}
		if t.decode(msg, &d) {
			if d.Text != nil {
				t.query.SetSearchDraft(*d.Text)
			}
			t.query.CommitSearch()
			t.query.Sync(t.ctx)
		}
	case "filter_input", "filter_commit":
		var d struct {
			Min *string `json:"min"`
			Max *string `json:"max"`
		}
		if !t.decode(msg, &d) {
			return
		}
		if d.Min != nil {
			t.query.SetMinDraft(*d.Min)
		}
		if d.Max != nil {
			t.query.SetMaxDraft(*d.Max)
		}
		if msg.Type == "filter_commit" {
			t.query.CommitFilter()
			t.query.Sync(t.ctx)
		}
	case "filter_clear":
		t.query.ClearFilter()
		t.query.Sync(t.ctx)
	case "next_page":
		if t.query.NextPage() {
			t.query.Sync(t.ctx)
		}
	case "prev_page":
		if t.query.PrevPage() {
			t.query.Sync(t.ctx)
		}
	case "retry":
		t.query.Retry(t.ctx)
	case "get_detail":
		if id, ok := t.decodeID(msg); ok {
			t.goAsync(func() { t.handleDetail(id) })
		}
	case "get_brands":
		t.goAsync(t.handleBrands)
	case "check_auth":
		var d struct {
			AfterLogin bool `json:"afterLogin"`
		}
		if t.decode(msg, &d) {
			t.goAsync(func() { t.handleCheckAuth(d.AfterLogin) })
		}
	case "logout":
		t.goAsync(t.handleLogout)
	case "delete":
		if id, ok := t.decodeID(msg); ok && t.requireAdmin() {
			t.handleDelete(id)
		}
	case "upload":
		var d struct {
			Name  string `json:"name"`
			Image string `json:"image"`
		}
		if t.decode(msg, &d) && t.requireAdmin() {
			t.handleUpload(d.Name, d.Image)
		}
	case "retry_upload":
		if t.requireAdmin() {
			if err := t.upload.Retry(t.ctx); err != nil {
				t.notice(err.Error())
			}
		}
	case "reset_upload":
		t.upload.Reset()
	case "get_uploads":
		if t.requireAdmin() {
			t.goAsync(t.handleUploads)
		}
	default:
		t.sendError("Unknown message type")
	}
}

func (t *tab) decode(msg inbound, v any) bool {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return true
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		t.logger.Debug("Invalid message data", zap.String("type", msg.Type), zap.Error(err))
		t.sendError("Invalid message data")
		return false
	}
	return true
}

// decodeID reads the record id of get_detail and delete. Ids start at 1.
func (t *tab) decodeID(msg inbound) (int64, bool) {
	var d struct {
		ID int64 `json:"id"`
	}
	if !t.decode(msg, &d) {
		return 0, false
	}
	if d.ID <= 0 {
		t.sendError("Invalid message data")
		return 0, false
	}
	return d.ID, true
}

// requireAdmin refuses privileged actions for tabs without an admin session.
func (t *tab) requireAdmin() bool {
	if err := t.session.RequireAdmin(); err != nil {
		t.notice(session.RefusalMessage(err))
		return false
	}
	return true
}

func (t *tab) handleDetail(id int64) {
	food, err := t.client.Get(t.ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		t.send("detail_error", map[string]any{
			"id":       id,
			"notFound": api.IsNotFound(err),
			"message":  api.Message(err, "Failed to fetch canned food"),
		})
		return
	}
	t.send("detail", food)
}

func (t *tab) handleBrands() {
	brands, err := t.client.Brands(t.ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			t.sendError(api.Message(err, "Failed to fetch brands"))
		}
		return
	}
	t.send("brands", map[string]any{"brands": brands})
}

func (t *tab) handleCheckAuth(afterLogin bool) {
	st := t.session.Refresh(t.ctx)
	t.send("auth", st)
	if afterLogin && st.Authenticated {
		t.navigateAfter(t.server.opts.AuthSuccessDelay, "/")
	}
}

func (t *tab) handleLogout() {
	st, err := t.session.Clear(t.ctx)
	if errors.Is(err, context.Canceled) {
		return
	}
	t.send("auth", st)
	if err != nil {
		t.notice(st.Error)
	}
}

// handleDelete hides the record at once and puts it back if the backend
// refuses.
func (t *tab) handleDelete(id int64) {
	restore := t.query.OptimisticRemove(id)

	t.goAsync(func() {
		err := t.client.Delete(t.ctx, id)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			restore()
			msg := session.RefusalMessage(err)
			if msg == "" {
				msg = api.Message(err, "Failed to delete canned food")
			}
			t.logger.Warn("Delete failed", zap.Int64("id", id), zap.Error(err))
			t.notice(msg)
			return
		}
		t.send("deleted", map[string]any{"id": id})
		t.query.Retry(t.ctx)
	})
}

func (t *tab) handleUpload(name, encoded string) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.logger.Debug("Error decoding image", zap.Error(err))
		t.sendError("Invalid image format")
		return
	}
	// validation failures already reach the tab as an upload status
	if err := t.upload.Submit(t.ctx, name, data); errors.Is(err, upload.ErrBusy) {
		t.notice(err.Error())
	}
}

func (t *tab) onUploadStatus(st upload.Status) {
	t.send("upload_status", st)
	if st.Status == models.ScanSuccess && st.Result != nil {
		t.navigateAfter(t.server.opts.UploadSuccessDelay, fmt.Sprintf("/canned-foods/%d", st.Result.ID))
	}
}

func (t *tab) handleUploads() {
	scans, err := t.upload.Recent(t.ctx, recentUploads)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			t.logger.Warn("Error retrieving uploads", zap.Error(err))
			t.sendError("Failed to retrieve uploads")
		}
		return
	}
	if scans == nil {
		scans = []*models.UploadScan{}
	}
	t.send("uploads", map[string]any{"items": scans})
}

// navigateAfter tells the tab to go to path once delay has passed, unless
// the tab closes first.
func (t *tab) navigateAfter(delay time.Duration, path string) {
	t.goAsync(func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			t.send("navigate", map[string]string{"path": path})
		case <-t.ctx.Done():
		}
	})
}

func (t *tab) goAsync(fn func()) {
	if t.ctx.Err() != nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *tab) send(messageType string, data any) {
	msg := map[string]any{
		"type": messageType,
		"data": data,
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.ctx.Err() != nil {
		return
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		t.logger.Debug("Error sending message", zap.String("type", messageType), zap.Error(err))
	}
}

func (t *tab) sendError(message string) {
	t.send("error", map[string]string{"message": message})
}

// notice is a transient message the tab shows and then dismisses.
func (t *tab) notice(message string) {
	t.send("notice", map[string]string{"level": "error", "message": message})
}
