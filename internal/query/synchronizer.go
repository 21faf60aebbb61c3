// Package query keeps the search, filter and pagination state of one
// browser tab and turns it into backend list requests.
//
// Inputs are buffered and only take part in a query once committed. When
// the committed search or filter bounds differ from the previous query,
// the page is reset to 1 and the fetch is deferred to the next Reconcile,
// so the reset is observed before the request goes out. A new fetch always
// cancels the one in flight, and a superseded or cancelled fetch never
// touches state.
package query

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wsx4588588/canlog-frontend/internal/api"
	"github.com/wsx4588588/canlog-frontend/internal/models"
)

// DefaultLimit is the page size used when none is configured.
const DefaultLimit = 12

const fetchFailed = "Failed to fetch canned foods"

// Fetcher loads one page of canned foods.
type Fetcher interface {
	List(ctx context.Context, params api.ListParams) (*models.Page, error)
}

// Outcome reports what a Reconcile call did.
type Outcome int

const (
	// Settled means the issued query already matches the current state.
	Settled Outcome = iota
	// Deferred means the page was reset to 1; reconcile again to fetch.
	Deferred
	// Fetching means a new request was issued.
	Fetching
)

// Identity is the part of a query that decides whether two requests ask
// for the same result set. The page number is not part of it.
type Identity struct {
	Search string
	Min    *float64
	Max    *float64
}

// Equal compares identities by value.
func (i Identity) Equal(o Identity) bool {
	return i.Search == o.Search && sameBound(i.Min, o.Min) && sameBound(i.Max, o.Max)
}

func sameBound(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type queryKey struct {
	identity Identity
	page     int
}

// State is the observable state of a Synchronizer.
type State struct {
	SearchDraft  string       `json:"searchDraft"`
	Search       string       `json:"search"`
	MinDraft     string       `json:"minDraft"`
	MaxDraft     string       `json:"maxDraft"`
	Min          *float64     `json:"min"`
	Max          *float64     `json:"max"`
	FilterActive bool         `json:"filterActive"`
	Page         int          `json:"page"`
	TotalPages   int          `json:"totalPages"`
	CanPrev      bool         `json:"canPrev"`
	CanNext      bool         `json:"canNext"`
	Loading      bool         `json:"loading"`
	Error        string       `json:"error,omitempty"`
	Result       *models.Page `json:"result,omitempty"`
}

// Synchronizer owns the {search, min, max, page} tuple of one tab.
type Synchronizer struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	wg       sync.WaitGroup

	fetcher  Fetcher
	limit    int
	logger   *zap.Logger
	onChange func(State)

	search   Buffered[string]
	minText  Buffered[string]
	maxText  Buffered[string]
	min, max *float64
	page     int

	lastIdentity *Identity
	issued       *queryKey
	cancel       context.CancelFunc
	generation   uint64

	loading    bool
	err        error
	result     *models.Page
	totalPages int
}

// New creates a Synchronizer at page 1 with empty search and no bounds.
// onChange, if non-nil, receives a snapshot after every observable change,
// in order.
func New(fetcher Fetcher, limit int, logger *zap.Logger, onChange func(State)) *Synchronizer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		fetcher:  fetcher,
		limit:    limit,
		logger:   logger.Named("query"),
		onChange: onChange,
		page:     1,
	}
}

// SetSearchDraft buffers search text without affecting the query.
func (s *Synchronizer) SetSearchDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search.SetDraft(text)
}

// CommitSearch promotes the buffered search text. It reports whether the
// committed search changed.
func (s *Synchronizer) CommitSearch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.search.CommitFunc(NormalizeSearch)
}

// SetMinDraft buffers the lower bound input.
func (s *Synchronizer) SetMinDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minText.SetDraft(text)
}

// SetMaxDraft buffers the upper bound input.
func (s *Synchronizer) SetMaxDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxText.SetDraft(text)
}

// SetBoundDrafts buffers both filter bound inputs.
func (s *Synchronizer) SetBoundDrafts(minText, maxText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minText.SetDraft(minText)
	s.maxText.SetDraft(maxText)
}

// CommitFilter parses the buffered bounds and makes them effective. It
// reports whether either bound changed.
func (s *Synchronizer) CommitFilter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.minText.Commit()
	s.maxText.Commit()
	lo, hi := ParseBound(s.minText.Committed()), ParseBound(s.maxText.Committed())
	changed := !sameBound(lo, s.min) || !sameBound(hi, s.max)
	s.min, s.max = lo, hi
	return changed
}

// ClearFilter drops both bounds and their drafts.
func (s *Synchronizer) ClearFilter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.min != nil || s.max != nil
	s.minText.Reset("")
	s.maxText.Reset("")
	s.min, s.max = nil, nil
	return changed
}

// NextPage moves one page forward within the last known page count.
func (s *Synchronizer) NextPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page >= s.totalPages {
		return false
	}
	s.page++
	return true
}

// PrevPage moves one page back, never below 1.
func (s *Synchronizer) PrevPage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page <= 1 {
		return false
	}
	s.page--
	return true
}

// Reconcile compares the committed state with the last issued query and
// acts on the difference. ctx bounds the fetch it may start; cancelling it
// silently abandons the fetch.
func (s *Synchronizer) Reconcile(ctx context.Context) Outcome {
	return s.reconcile(ctx, false)
}

// Sync reconciles until the state settles or a fetch is issued.
func (s *Synchronizer) Sync(ctx context.Context) Outcome {
	outcome := s.Reconcile(ctx)
	if outcome == Deferred {
		outcome = s.Reconcile(ctx)
	}
	return outcome
}

// Retry re-issues the current query even if it matches the last one.
func (s *Synchronizer) Retry(ctx context.Context) Outcome {
	return s.reconcile(ctx, true)
}

func (s *Synchronizer) reconcile(ctx context.Context, force bool) Outcome {
	s.mu.Lock()

	id := s.identityLocked()
	if s.lastIdentity == nil || !s.lastIdentity.Equal(id) {
		s.lastIdentity = &id
		if s.page != 1 {
			// the fetch in flight belongs to the old identity
			if s.cancel != nil {
				s.cancel()
				s.cancel = nil
			}
			s.generation++
			s.issued = nil
			s.loading = false
			s.page = 1
			s.logger.Debug("Query identity changed, page reset", zap.String("search", id.Search))
			s.unlockAndNotify()
			return Deferred
		}
	}

	key := queryKey{identity: id, page: s.page}
	if !force && s.issued != nil && s.issued.identity.Equal(key.identity) && s.issued.page == key.page {
		s.mu.Unlock()
		return Settled
	}

	if s.cancel != nil {
		s.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.generation++
	gen := s.generation
	s.issued = &key
	s.loading = true
	s.err = nil

	params := api.ListParams{
		Search:                  id.Search,
		MinPhosphorusPer100kcal: id.Min,
		MaxPhosphorusPer100kcal: id.Max,
		Page:                    key.page,
		Limit:                   s.limit,
	}

	s.wg.Add(1)
	s.unlockAndNotify()

	go s.fetch(fetchCtx, gen, params)
	return Fetching
}

func (s *Synchronizer) fetch(ctx context.Context, gen uint64, params api.ListParams) {
	defer s.wg.Done()

	page, err := s.fetcher.List(ctx, params)

	s.mu.Lock()
	if gen != s.generation || ctx.Err() != nil || errors.Is(err, context.Canceled) {
		s.mu.Unlock()
		return
	}

	s.loading = false
	if err != nil {
		s.err = err
		s.logger.Warn("List fetch failed", zap.Int("page", params.Page), zap.Error(err))
	} else {
		s.result = page
		s.totalPages = page.Meta.TotalPages
	}
	s.unlockAndNotify()
}

// OptimisticRemove hides an item from the visible page while its deletion
// is pending. The returned restore func puts the previous page back, unless
// a newer result has replaced it in the meantime.
func (s *Synchronizer) OptimisticRemove(id int64) (restore func()) {
	s.mu.Lock()

	prev := s.result
	if prev == nil {
		s.mu.Unlock()
		return func() {}
	}

	pruned := &models.Page{Meta: prev.Meta, Items: make([]models.CannedFood, 0, len(prev.Items))}
	for _, item := range prev.Items {
		if item.ID != id {
			pruned.Items = append(pruned.Items, item)
		}
	}
	if removed := len(prev.Items) - len(pruned.Items); removed > 0 && pruned.Meta.Total >= removed {
		pruned.Meta.Total -= removed
	}
	s.result = pruned
	s.unlockAndNotify()

	return func() {
		s.mu.Lock()
		if s.result != pruned {
			s.mu.Unlock()
			return
		}
		s.result = prev
		s.unlockAndNotify()
	}
}

// Snapshot returns the current observable state.
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close cancels the in-flight fetch and waits for it to return.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every issued fetch has returned.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

func (s *Synchronizer) identityLocked() Identity {
	return Identity{Search: s.search.Committed(), Min: s.min, Max: s.max}
}

func (s *Synchronizer) snapshotLocked() State {
	st := State{
		SearchDraft:  s.search.Draft(),
		Search:       s.search.Committed(),
		MinDraft:     s.minText.Draft(),
		MaxDraft:     s.maxText.Draft(),
		Min:          s.min,
		Max:          s.max,
		FilterActive: s.min != nil || s.max != nil,
		Page:         s.page,
		TotalPages:   s.totalPages,
		CanPrev:      s.page > 1,
		CanNext:      s.page < s.totalPages,
		Loading:      s.loading,
		Result:       s.result,
	}
	if s.err != nil {
		st.Error = api.Message(s.err, fetchFailed)
	}
	return st
}

// unlockAndNotify releases mu and delivers a snapshot taken under it.
// notifyMu is acquired before mu is released so listeners see snapshots
// in the order they were taken.
func (s *Synchronizer) unlockAndNotify() {
	st := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	if s.onChange != nil {
		s.onChange(st)
	}
}
