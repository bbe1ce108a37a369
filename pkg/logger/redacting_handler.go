// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"context"
	"log/slog"

	"github.com/stacklok/oauthbroker/pkg/redact"
)

// redactingHandler masks the value of every attribute whose key names a credential.
type redactingHandler struct {
	next slog.Handler
}

// NewRedactingHandler wraps next so that sensitive attributes are replaced
// with redact.Redacted, including those nested in groups.
func NewRedactingHandler(next slog.Handler) slog.Handler {
	if rh, ok := next.(*redactingHandler); ok {
		return rh
	}
	return &redactingHandler{next: next}
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if redact.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, redact.Redacted)
	}
	if a.Value.Kind() != slog.KindGroup {
		return a
	}
	group := a.Value.Group()
	redacted := make([]slog.Attr, len(group))
	for i, ga := range group {
		redacted[i] = redactAttr(ga)
	}
	return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
}
