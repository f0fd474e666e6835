// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers implements the gateway's HTTP request handlers: the
Anthropic-shape messages endpoint, provider/control-plane introspection, and
health checks, plus the shared response envelope every handler writes
through.

# Core types

  - MessagesHandler  — POST /anthropic/v1/messages and GET /anthropic/v1/models
  - ControlHandler   — GET/POST /providers, GET/PUT/DELETE /providers/{id}, POST /test
  - HealthHandler    — /health, /healthz, /ready, /version
  - Response         — shared JSON envelope (success + data + error + timestamp)
  - ErrorInfo        — wire form of a *types.Error (kind, message, retryable)
  - ResponseWriter   — wraps http.ResponseWriter to capture the status code

# Capabilities

  - WriteSuccess / WriteError / WriteJSON response helpers
  - DecodeJSONBody (1 MB limit, strict unknown-field rejection), ValidateContentType
  - SSE streaming: MessagesHandler.HandleMessages switches to it internally
    when the request body sets stream:true
  - Pluggable health checks: RegisterCheck accepts any HealthCheck, including
    ProviderHealthCheck which reports on gateway/health.Supervisor state

The Anthropic-shape endpoints (HandleMessages, HandleModels) write their own
wire error shape rather than the Response envelope above; control-plane and
health endpoints use Response throughout.
*/
package handlers
