package scanner

import (
	"context"
	"sync"

	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/errors"
)

// ErrScanInProgress rejects a second scan of a folder that is already being
// scanned.
var ErrScanInProgress = errors.NewStd("scan already in progress for this folder")

// Job is a handle on one background scan.
type Job struct {
	FolderID string

	done   chan struct{}
	result *Result
	err    error
}

// Wait blocks until the scan finishes or the context is canceled. Canceling
// the wait does not cancel the scan itself.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports completion without blocking.
func (j *Job) Done() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

// Enricher fetches and stores external info for an artist.
type Enricher interface {
	EnrichArtist(ctx context.Context, artistID string) (*catalog.ArtistInfo, error)
}

// Scheduler runs scans in the background, one at a time per folder. Scans
// outlive the request that submitted them.
type Scheduler struct {
	scanner  *Scanner
	store    catalog.Interface
	enricher Enricher

	mu      sync.Mutex
	running map[string]*Job
}

func NewScheduler(scanner *Scanner, store catalog.Interface) *Scheduler {
	return &Scheduler{
		scanner: scanner,
		store:   store,
		running: make(map[string]*Job),
	}
}

// WithEnricher makes the scheduler enrich a folder's artists after each
// successful scan. Enrichment is best effort.
func (s *Scheduler) WithEnricher(enricher Enricher) *Scheduler {
	s.enricher = enricher
	return s
}

// Submit starts a background scan of a folder on behalf of a user. Users
// without permission on the folder cannot tell it exists.
func (s *Scheduler) Submit(ctx context.Context, userID, folderID string) (*Job, error) {
	allowed, err := s.store.HasPermission(userID, folderID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errors.NotFound("music folder", folderID)
	}

	return s.start(ctx, folderID)
}

// Rescan starts a background scan on the system's own behalf, with no
// permission check. Used by the periodic rescan loop.
func (s *Scheduler) Rescan(ctx context.Context, folderID string) (*Job, error) {
	return s.start(ctx, folderID)
}

func (s *Scheduler) start(ctx context.Context, folderID string) (*Job, error) {
	s.mu.Lock()
	if job, ok := s.running[folderID]; ok && !job.Done() {
		s.mu.Unlock()
		return nil, errors.New(ErrScanInProgress).
			Component("scanner").
			Category(errors.CategoryConflict).
			Context("folder_id", folderID).
			Build()
	}
	job := &Job{FolderID: folderID, done: make(chan struct{})}
	s.running[folderID] = job
	s.mu.Unlock()

	// The scan runs detached from the submitting request.
	go func() {
		defer close(job.done)
		scanCtx := context.WithoutCancel(ctx)
		job.result, job.err = s.scanner.ScanFolder(scanCtx, folderID)
		if job.err == nil && s.enricher != nil {
			s.enrichFolder(scanCtx, folderID)
		}

		s.mu.Lock()
		delete(s.running, folderID)
		s.mu.Unlock()
	}()
	return job, nil
}

// enrichFolder looks up external info for every artist credited in the
// folder. Failures are logged and never fail the scan.
func (s *Scheduler) enrichFolder(ctx context.Context, folderID string) {
	artistIDs, err := s.store.ArtistIDsInFolder(folderID)
	if err != nil {
		s.scanner.log.Warn("artist enrichment skipped", "folder_id", folderID, "error", err)
		return
	}
	for _, artistID := range artistIDs {
		if _, err := s.enricher.EnrichArtist(ctx, artistID); err != nil {
			s.scanner.log.Debug("artist enrichment failed", "artist_id", artistID, "error", err)
		}
	}
}

// Running lists the folders with an active scan.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	folders := make([]string, 0, len(s.running))
	for folderID := range s.running {
		folders = append(folders, folderID)
	}
	return folders
}
