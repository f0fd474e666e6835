// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package types provides the data model shared across the gateway: canonical
// messages, tool schemas, token usage, the structured error taxonomy, and
// context propagation helpers. It has zero dependencies on other gateway
// packages to avoid import cycles — everything else depends on types, not
// the other way around.
package types
