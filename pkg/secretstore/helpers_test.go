package secretstore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/systmms/edgesecrets/pkg/secret"
)

// countingMedium records how often the wrapped medium is read
type countingMedium struct {
	Medium
	retrieves     atomic.Int64
	retrieveLists atomic.Int64
	mergeErr      error
}

func (c *countingMedium) Retrieve(ctx context.Context, name, version string, date time.Time) (*secret.Secret, error) {
	c.retrieves.Add(1)
	return c.Medium.Retrieve(ctx, name, version, date)
}

func (c *countingMedium) RetrieveList(ctx context.Context, stubs []secret.Secret) (*secret.List, error) {
	c.retrieveLists.Add(1)
	return c.Medium.RetrieveList(ctx, stubs)
}

func (c *countingMedium) Merge(ctx context.Context, list *secret.List) error {
	if c.mergeErr != nil {
		return c.mergeErr
	}
	return c.Medium.Merge(ctx, list)
}

func (c *countingMedium) Count(ctx context.Context) (int, error) {
	return c.Medium.(Counter).Count(ctx)
}

func (c *countingMedium) reads() int64 {
	return c.retrieves.Load() + c.retrieveLists.Load()
}

var errBroken = errors.New("broken store")

// brokenStore fails every operation
type brokenStore struct{}

func (brokenStore) ClearCache(context.Context) error { return errBroken }
func (brokenStore) RetrieveSecret(context.Context, string, string, time.Time, bool) (*secret.Secret, error) {
	return nil, errBroken
}
func (brokenStore) RetrieveSecretList(context.Context, []secret.Secret, bool) (*secret.List, error) {
	return nil, errBroken
}
func (brokenStore) StoreSecret(context.Context, secret.Secret) error    { return errBroken }
func (brokenStore) MergeSecretList(context.Context, *secret.List) error { return errBroken }

// recordingObserver captures observer events
type recordingObserver struct {
	NopObserver
	hits, misses atomic.Int64
	fills        atomic.Int64
	fillErrors   atomic.Int64
	outcomes     chan string
	unmatched    atomic.Int64
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{outcomes: make(chan string, 16)}
}

func (r *recordingObserver) Lookup(_ string, hit bool) {
	if hit {
		r.hits.Add(1)
		return
	}
	r.misses.Add(1)
}

func (r *recordingObserver) CacheFill(_ string, err error) {
	if err != nil {
		r.fillErrors.Add(1)
		return
	}
	r.fills.Add(1)
}

func (r *recordingObserver) RemoteOutcome(outcome string) {
	r.outcomes <- outcome
}

func (r *recordingObserver) UnmatchedResponse() {
	r.unmatched.Add(1)
}
