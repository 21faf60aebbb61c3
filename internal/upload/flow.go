// Package upload drives the submission of a nutrition label image to the
// backend analysis endpoint for one browser tab. A failed submission keeps
// the image in memory so it can be retried without choosing it again.
package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wsx4588588/canlog-frontend/internal/api"
	"github.com/wsx4588588/canlog-frontend/internal/database"
	"github.com/wsx4588588/canlog-frontend/internal/models"
	"github.com/wsx4588588/canlog-frontend/internal/session"
)

// Progress reported for each status.
const (
	ProgressUploading = 20
	ProgressAnalyzing = 50
	ProgressDone      = 100
)

const analyzeFailed = "Failed to analyze image"

var (
	ErrBusy           = errors.New("an upload is already in progress")
	ErrNothingToRetry = errors.New("no failed upload to retry")
)

// Analyzer turns a label image into a stored canned food record.
type Analyzer interface {
	Analyze(ctx context.Context, filename, contentType string, image io.Reader) (*models.CannedFood, error)
}

// Status is the observable state of a Flow.
type Status struct {
	ScanID    string             `json:"scanId,omitempty"`
	FileName  string             `json:"fileName,omitempty"`
	Status    string             `json:"status"`
	Progress  int                `json:"progress"`
	Error     string             `json:"error,omitempty"`
	Retryable bool               `json:"retryable"`
	Result    *models.CannedFood `json:"result,omitempty"`
}

type pendingImage struct {
	name        string
	contentType string
	data        []byte
}

// Flow runs at most one analysis submission at a time.
type Flow struct {
	analyzer Analyzer
	journal  database.DB
	opts     Options
	logger   *zap.Logger
	onChange func(Status)

	mu       sync.Mutex
	notifyMu sync.Mutex
	wg       sync.WaitGroup
	status   Status
	cancel   context.CancelFunc
	gen      uint64

	// images of failed submissions, keyed by scan id
	pending sync.Map
}

// NewFlow creates an idle Flow. journal may be nil.
func NewFlow(analyzer Analyzer, journal database.DB, opts Options, logger *zap.Logger, onChange func(Status)) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		analyzer: analyzer,
		journal:  journal,
		opts:     opts.withDefaults(),
		logger:   logger.Named("upload"),
		onChange: onChange,
		status:   Status{Status: models.ScanIdle},
	}
}

// Submit validates the image and starts analysing it. Validation failures
// are reported both as the returned error and in the status.
func (f *Flow) Submit(ctx context.Context, name string, data []byte) error {
	f.mu.Lock()
	if f.busyLocked() {
		f.mu.Unlock()
		return ErrBusy
	}

	contentType, err := Validate(data, f.opts)
	if err != nil {
		f.pending.Delete(f.status.ScanID)
		f.status = Status{FileName: name, Status: models.ScanError, Error: err.Error()}
		f.unlockAndNotify()
		return err
	}

	f.pending.Delete(f.status.ScanID)
	img := &pendingImage{name: name, contentType: contentType, data: data}
	scan := &models.UploadScan{
		ID:          uuid.New().String(),
		FileName:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Status:      models.ScanUploading,
		CreatedAt:   time.Now(),
	}
	if f.journal != nil {
		if err := f.journal.SaveScan(ctx, scan); err != nil {
			f.logger.Warn("Failed to journal upload", zap.String("scan_id", scan.ID), zap.Error(err))
		}
	}

	f.start(ctx, scan.ID, img)
	return nil
}

// Retry resubmits the image of the last failed upload.
func (f *Flow) Retry(ctx context.Context) error {
	f.mu.Lock()
	if f.busyLocked() {
		f.mu.Unlock()
		return ErrBusy
	}
	if f.status.Status != models.ScanError || !f.status.Retryable {
		f.mu.Unlock()
		return ErrNothingToRetry
	}
	v, ok := f.pending.Load(f.status.ScanID)
	if !ok {
		f.mu.Unlock()
		return ErrNothingToRetry
	}

	scanID := f.status.ScanID
	f.journalStatus(ctx, scanID, models.ScanUploading, "", 0)
	f.start(ctx, scanID, v.(*pendingImage))
	return nil
}

// start must be called with mu held; it releases it.
func (f *Flow) start(ctx context.Context, scanID string, img *pendingImage) {
	f.gen++
	gen := f.gen
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.status = Status{ScanID: scanID, FileName: img.name, Status: models.ScanUploading, Progress: ProgressUploading}
	f.wg.Add(1)
	f.unlockAndNotify()

	f.mu.Lock()
	if gen == f.gen {
		f.status.Status = models.ScanAnalyzing
		f.status.Progress = ProgressAnalyzing
	}
	f.unlockAndNotify()
	f.journalStatus(runCtx, scanID, models.ScanAnalyzing, "", 0)

	go f.run(runCtx, gen, scanID, img)
}

func (f *Flow) run(ctx context.Context, gen uint64, scanID string, img *pendingImage) {
	defer f.wg.Done()

	result, err := f.analyzer.Analyze(ctx, img.name, img.contentType, bytes.NewReader(img.data))

	f.mu.Lock()
	if gen != f.gen || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		f.mu.Unlock()
		return
	}

	if err != nil {
		// the image is kept even on 401/403 so it can be resent after signing in
		msg := session.RefusalMessage(err)
		if msg == "" {
			msg = api.Message(err, analyzeFailed)
		}
		f.pending.Store(scanID, img)
		f.logger.Warn("Image analysis failed",
			zap.String("scan_id", scanID), zap.Bool("unauthorized", api.IsUnauthorized(err)), zap.Error(err))
		f.journalStatus(ctx, scanID, models.ScanError, msg, 0)
		f.status = Status{ScanID: scanID, FileName: img.name, Status: models.ScanError, Error: msg, Retryable: true}
		f.unlockAndNotify()
		return
	}

	f.pending.Delete(scanID)
	f.logger.Info("Image analysed",
		zap.String("scan_id", scanID), zap.Int64("canned_food_id", result.ID))
	f.journalStatus(ctx, scanID, models.ScanSuccess, "", result.ID)
	f.status = Status{ScanID: scanID, FileName: img.name, Status: models.ScanSuccess, Progress: ProgressDone, Result: result}
	f.unlockAndNotify()
}

// Reset abandons any submission and returns to idle.
func (f *Flow) Reset() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
	f.pending.Delete(f.status.ScanID)
	f.status = Status{Status: models.ScanIdle}
	f.unlockAndNotify()
}

// Recent lists the latest journaled submissions, newest first.
func (f *Flow) Recent(ctx context.Context, limit int) ([]*models.UploadScan, error) {
	if f.journal == nil {
		return nil, nil
	}
	return f.journal.GetRecentScans(ctx, limit)
}

// Status returns the current status.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Close cancels the submission in flight and waits for it to return.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// Wait blocks until the submission in flight has returned.
func (f *Flow) Wait() {
	f.wg.Wait()
}

func (f *Flow) busyLocked() bool {
	return f.status.Status == models.ScanUploading || f.status.Status == models.ScanAnalyzing
}

func (f *Flow) journalStatus(ctx context.Context, scanID, status, errMsg string, resultID int64) {
	if f.journal == nil {
		return
	}
	if err := f.journal.UpdateScanStatus(ctx, scanID, status, errMsg, resultID); err != nil {
		f.logger.Warn("Failed to update upload journal",
			zap.String("scan_id", scanID), zap.String("status", status), zap.Error(err))
	}
}

func (f *Flow) unlockAndNotify() {
	st := f.status
	f.notifyMu.Lock()
	f.mu.Unlock()
	defer f.notifyMu.Unlock()

	if f.onChange != nil {
		f.onChange(st)
	}
}
