// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
)

// internalErrorBody is the only body a client sees for a handler
// failure. Router error details stay in the server log.
var internalErrorBody = json.RawMessage(`{"error":"internal server error"}`)

// handleRequest runs one request descriptor through the router and
// sends the correlated response. A router panic is confined to this
// request: the client gets a 500 and the connection lives on.
func (c *conn) handleRequest(ctx context.Context, data []byte) {
	var request requestMessage
	if err := json.Unmarshal(data, &request); err != nil {
		c.logger.Warn("dropping malformed request", "error", err)
		return
	}
	if request.ID == "" {
		c.logger.Warn("dropping request without id",
			"method", request.Method, "path", request.Path)
		return
	}

	status, headers, body, err := c.routeRecovering(ctx, &request)
	if err != nil {
		c.logger.Error("request handler failed",
			"id", request.ID, "method", request.Method,
			"path", request.Path, "error", err)
		status, headers, body = 500, nil, internalErrorBody
	}

	if err := c.sendMessage(responseMessage{
		Type:    typeResponse,
		ID:      request.ID,
		Status:  status,
		Headers: headers,
		Body:    body,
	}); err != nil {
		c.logger.Warn("sending response", "id", request.ID, "error", err)
	}
}

// routeRecovering calls the router with panics converted to errors.
func (c *conn) routeRecovering(ctx context.Context, request *requestMessage) (status int, headers map[string]string, body []byte, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Error("request handler panicked",
				"id", request.ID, "path", request.Path, "panic", recovered)
			status, headers, body = 500, nil, internalErrorBody
			err = nil
		}
	}()
	return c.server.Router.Route(ctx, request.Method, request.Path, request.Headers, request.Body)
}
