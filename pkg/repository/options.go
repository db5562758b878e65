package repository

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// Options is the normalized argument of every repository operation.
//
// Build it with Path, Search or Regex and refine it with the With*
// methods:
//
//	repo.GetInfo(ctx, repository.Path("/a/b.png").WithSubscriber("ui-42"), cb)
//	repo.FindAssets(ctx, repository.Search("report").Under("/docs"), cb)
type Options struct {
	// Path is the node the operation targets. For FindAssets it is the
	// directory the scan is limited to (empty means the whole tree).
	Path string

	// Search is a literal substring matched against asset names
	Search string

	// Pattern is a regular expression matched against asset names.
	// It takes precedence over Search.
	Pattern *regexp.Regexp

	// Subscriber gates callback and event delivery (see Subscribe).
	// Empty means always deliver.
	Subscriber string

	// Correlation tags events and log lines of the operation.
	// A random UUID is assigned when empty.
	Correlation string

	// Limit caps FindAssets results. Zero means unlimited.
	Limit int
}

// Path targets the node at p.
func Path(p string) Options {
	return Options{Path: p}
}

// Search matches asset names containing term.
func Search(term string) Options {
	return Options{Search: term}
}

// Regex matches asset names against re.
func Regex(re *regexp.Regexp) Options {
	return Options{Pattern: re}
}

// WithSubscriber ties delivery to the subscriber id.
func (o Options) WithSubscriber(id string) Options {
	o.Subscriber = id
	return o
}

// WithCorrelation sets the correlation id.
func (o Options) WithCorrelation(id string) Options {
	o.Correlation = id
	return o
}

// Under limits a search to the subtree below dir.
func (o Options) Under(dir string) Options {
	o.Path = dir
	return o
}

// WithLimit caps the number of search results.
func (o Options) WithLimit(n int) Options {
	o.Limit = n
	return o
}

// normalize resolves the effective path and assigns defaults.
func (o Options) normalize() Options {
	o.Path = pathutil.Normalize(o.Path)
	if o.Correlation == "" {
		o.Correlation = uuid.NewString()
	}
	return o
}

func (o Options) pattern() store.Pattern {
	if o.Pattern != nil {
		return store.RegexpPattern(o.Pattern)
	}
	return store.LiteralPattern(o.Search)
}
