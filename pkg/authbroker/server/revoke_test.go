// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
)

func TestRevokeHandler(t *testing.T) {
	t.Parallel()

	upstreamDown := errors.New("upstream unavailable")

	tests := []struct {
		name       string
		policy     authbroker.RevokeFailurePolicy
		form       url.Values
		upstream   error
		expectCall bool
		wantStatus int
		wantError  string
	}{
		{
			name:       "revoked",
			form:       url.Values{"client_id": {testClientID}, "token": {"rt"}, "token_type_hint": {"refresh_token"}},
			expectCall: true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "upstream failure ignored",
			policy:     authbroker.RevokeFailureIgnore,
			form:       url.Values{"client_id": {testClientID}, "token": {"rt"}},
			upstream:   upstreamDown,
			expectCall: true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "upstream failure propagated",
			policy:     authbroker.RevokeFailurePropagate,
			form:       url.Values{"client_id": {testClientID}, "token": {"rt"}},
			upstream:   upstreamDown,
			expectCall: true,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "temporarily_unavailable",
		},
		{
			name:       "missing token",
			form:       url.Values{"client_id": {testClientID}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name:       "unknown client",
			form:       url.Values{"client_id": {"nobody"}, "token": {"rt"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := handlerTestSetup(t, authbroker.Config{RevokeFailurePolicy: tc.policy})
			if tc.expectCall {
				f.provider.EXPECT().Revoke(gomock.Any(), "rt").Return(tc.upstream)
			}

			rec := f.postForm("/oauth/revoke", tc.form)

			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			if tc.wantError == "" {
				assert.Empty(t, rec.Body.String())
				return
			}
			assert.Equal(t, tc.wantError, decodeJSON(t, rec)["error"])
			assert.NotContains(t, rec.Body.String(), upstreamDown.Error())
		})
	}
}
