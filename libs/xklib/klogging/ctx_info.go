package klogging

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type ctxKey int

var ctxInfoKey ctxKey

// CtxInfo carries key/values that every log entry under a ctx picks up.
// Parents are visited first, so outer scopes (run id) print before inner ones (worker index).
type CtxInfo struct {
	Parent *CtxInfo

	mu      sync.RWMutex
	details []Keypair
}

func NewCtxInfo(parent *CtxInfo) *CtxInfo {
	return &CtxInfo{Parent: parent}
}

// GetCurrentCtxInfo returns nil when ctx carries none.
func GetCurrentCtxInfo(ctx context.Context) *CtxInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(ctxInfoKey).(*CtxInfo)
	return info
}

// CreateCtxInfo creates a child of whatever ctx already carries.
func CreateCtxInfo(ctx context.Context) (context.Context, *CtxInfo) {
	info := NewCtxInfo(GetCurrentCtxInfo(ctx))
	return context.WithValue(ctx, ctxInfoKey, info), info
}

func AttachToCtx(ctx context.Context, info *CtxInfo) context.Context {
	if info == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxInfoKey, info)
}

// With sets k; an existing k in this node is replaced in place.
func (info *CtxInfo) With(k string, v string) *CtxInfo {
	info.mu.Lock()
	defer info.mu.Unlock()
	for i := range info.details {
		if info.details[i].K == k {
			info.details[i].V = v
			return info
		}
	}
	info.details = append(info.details, Keypair{k, v})
	return info
}

// Visit walks from the root to this node. Empty values are skipped.
func (info *CtxInfo) Visit(visitor func(k, v string)) {
	if info == nil {
		return
	}
	info.Parent.Visit(visitor)
	info.mu.RLock()
	defer info.mu.RUnlock()
	for _, item := range info.details {
		s, _ := item.V.(string)
		if s == "" {
			continue
		}
		visitor(item.K, s)
	}
}

// FindByKey looks in this node first, then parents.
func (info *CtxInfo) FindByKey(k string, fallback string) string {
	if info == nil {
		return fallback
	}
	info.mu.RLock()
	for _, item := range info.details {
		if item.K == k {
			info.mu.RUnlock()
			if s, _ := item.V.(string); s != "" {
				return s
			}
			return fallback
		}
	}
	info.mu.RUnlock()
	return info.Parent.FindByKey(k, fallback)
}

func (info *CtxInfo) String() string {
	var b strings.Builder
	info.Visit(func(k, v string) {
		fmt.Fprintf(&b, ", %s=%v", k, v)
	})
	return b.String()
}
