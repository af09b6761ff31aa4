package ai

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"golang.org/x/sync/singleflight"
)

// DefaultModel is used when no model is configured or an alias cannot be
// resolved.
const DefaultModel = "claude-3-5-haiku-20241022"

var (
	sonnet37Alias = regexp.MustCompile(`(?i)(sonnet\s*3\.?7|3\.?7\s*sonnet)`)
	sonnetWord    = regexp.MustCompile(`(?i)sonnet`)
	version37     = regexp.MustCompile(`(?i)3\.?7`)
)

// ModelLister returns the models available to the configured key.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelResolver turns a configured model name into a concrete model id.
// The first successful resolution is kept for the life of the resolver and
// returned for every later call, whatever name is requested. A process builds
// exactly one resolver, through NewService, so the cache is process-wide;
// every chat model of that process must share it.
type ModelResolver struct {
	lister ModelLister
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	resolved string
}

// NewModelResolver builds a resolver backed by lister.
func NewModelResolver(lister ModelLister, logger *slog.Logger) *ModelResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelResolver{lister: lister, logger: logger}
}

// Resolve returns the model id to send upstream. Concurrent first calls
// share one resolution. A failed listing is returned to every waiting caller
// and the next call retries.
func (r *ModelResolver) Resolve(ctx context.Context, requested string) (string, error) {
	if cached := r.cached(); cached != "" {
		return cached, nil
	}

	v, err, _ := r.group.Do("resolve", func() (any, error) {
		if cached := r.cached(); cached != "" {
			return cached, nil
		}

		name := strings.TrimSpace(requested)
		id, err := r.resolve(ctx, name)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.resolved = id
		r.mu.Unlock()
		r.logger.Info("claude model resolved for process lifetime", "requested", name, "model", id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *ModelResolver) cached() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolved
}

func (r *ModelResolver) resolve(ctx context.Context, requested string) (string, error) {
	if requested == "" {
		return DefaultModel, nil
	}
	if !sonnet37Alias.MatchString(requested) {
		return requested, nil
	}

	models, err := r.lister.ListModels(ctx)
	if err != nil {
		var upstreamErr *apperr.UpstreamError
		if errors.As(err, &upstreamErr) {
			return "", err
		}
		r.logger.Warn("claude models listing unreadable, using default", "requested", requested, "error", err)
		return DefaultModel, nil
	}

	if id := matchSonnet37(models); id != "" {
		return id, nil
	}
	r.logger.Warn("no sonnet 3.7 model listed, using default", "requested", requested)
	return DefaultModel, nil
}

func matchSonnet37(models []ModelInfo) string {
	for _, m := range models {
		label := m.ID + " " + m.DisplayName
		if sonnetWord.MatchString(label) && version37.MatchString(label) {
			if id := strings.TrimSpace(m.ID); id != "" {
				return id
			}
		}
	}
	return ""
}
