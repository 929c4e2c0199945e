package artifacts

import (
	"context"
	"sync"

	"github.com/dukex/botportal/pkg/models"
)

// Lister fetches the file listing of an execution.
type Lister interface {
	ExecutionFiles(ctx context.Context, executionID string) (*models.ExecutionFiles, error)
}

// Browser caches file listings per execution. A listing is fetched on first
// expand and only re-fetched when forced.
type Browser struct {
	lister Lister

	mu       sync.Mutex
	cache    map[string]*models.ExecutionFiles
	expanded map[string]bool
}

func NewBrowser(lister Lister) *Browser {
	return &Browser{
		lister:   lister,
		cache:    make(map[string]*models.ExecutionFiles),
		expanded: make(map[string]bool),
	}
}

// Files returns the listing of an execution, fetching it when it is not
// cached or force is set. A failed fetch keeps the previous listing.
func (b *Browser) Files(ctx context.Context, executionID string, force bool) (*models.ExecutionFiles, error) {
	b.mu.Lock()
	cached, ok := b.cache[executionID]
	b.mu.Unlock()

	if ok && !force {
		return cached, nil
	}

	files, err := b.lister.ExecutionFiles(ctx, executionID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.cache[executionID] = files
	b.mu.Unlock()

	return files, nil
}

// Expand marks the execution expanded and loads its listing.
func (b *Browser) Expand(ctx context.Context, executionID string) (*models.ExecutionFiles, error) {
	files, err := b.Files(ctx, executionID, false)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.expanded[executionID] = true
	b.mu.Unlock()

	return files, nil
}

// Toggle expands a collapsed execution or collapses an expanded one.
func (b *Browser) Toggle(ctx context.Context, executionID string) (*models.ExecutionFiles, error) {
	if b.Expanded(executionID) {
		b.Collapse(executionID)

		return nil, nil
	}

	return b.Expand(ctx, executionID)
}

func (b *Browser) Collapse(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.expanded, executionID)
}

func (b *Browser) Expanded(executionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.expanded[executionID]
}

// Cached returns the listing without fetching.
func (b *Browser) Cached(executionID string) (*models.ExecutionFiles, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	files, ok := b.cache[executionID]

	return files, ok
}
