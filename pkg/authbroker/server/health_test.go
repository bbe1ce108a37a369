// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
	storagemocks "github.com/stacklok/oauthbroker/pkg/authbroker/storage/mocks"
)

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "store reachable", wantStatus: http.StatusOK, wantBody: `{"status":"ok"}`},
		{name: "store unreachable", pingErr: errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable, wantBody: `{"status":"unavailable"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := handlerTestSetup(t, authbroker.Config{})

			store := storagemocks.NewMockTransientStore(gomock.NewController(t))
			store.EXPECT().Ping(gomock.Any()).Return(tc.pingErr)
			routes := NewHandler(f.broker, store, WithLogger(f.handler.logger)).Routes()

			f.routes = routes
			rec := f.get("/health")

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.JSONEq(t, tc.wantBody, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}
