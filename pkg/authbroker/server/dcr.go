// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
)

// maxDCRBodySize is the maximum allowed size for DCR request bodies (64KB).
const maxDCRBodySize = 64 * 1024

// RegisterClientHandler handles POST /oauth/register requests.
// It implements RFC 7591 dynamic client registration for public clients.
func (h *Handler) RegisterClientHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	req.Body = http.MaxBytesReader(w, req.Body, maxDCRBodySize)

	if !strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		writeJSON(w, http.StatusBadRequest, &DCRError{
			Error:            DCRErrorInvalidClientMetadata,
			ErrorDescription: "Content-Type must be application/json",
		})
		return
	}

	var dcrReq DCRRequest
	if err := json.NewDecoder(req.Body).Decode(&dcrReq); err != nil {
		writeJSON(w, http.StatusBadRequest, &DCRError{
			Error:            DCRErrorInvalidClientMetadata,
			ErrorDescription: "invalid JSON request body",
		})
		return
	}

	validated, dcrErr := ValidateDCRRequest(&dcrReq)
	if dcrErr != nil {
		writeJSON(w, http.StatusBadRequest, dcrErr)
		return
	}

	client, err := h.broker.Clients().RegisterClient(ctx, storage.RegisteredClient{
		ClientID:                uuid.NewString(),
		ClientName:              validated.ClientName,
		RedirectURIs:            validated.RedirectURIs,
		GrantTypes:              validated.GrantTypes,
		ResponseTypes:           validated.ResponseTypes,
		TokenEndpointAuthMethod: validated.TokenEndpointAuthMethod,
		Scope:                   validated.Scope,
		ClientIDIssuedAt:        time.Now().Unix(),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to register client", "error", err)
		writeJSON(w, http.StatusInternalServerError, &DCRError{
			Error:            "server_error",
			ErrorDescription: "failed to register client",
		})
		return
	}

	h.logger.InfoContext(ctx, "registered new client",
		"client_id", client.ClientID,
		"client_name", client.ClientName)

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusCreated, DCRResponse{
		ClientID:                client.ClientID,
		ClientIDIssuedAt:        client.ClientIDIssuedAt,
		RedirectURIs:            client.RedirectURIs,
		ClientName:              client.ClientName,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   client.Scope,
	})
}
