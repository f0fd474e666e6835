// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 aimux 网关程序入口。

# 概述

cmd/aimux 是多供应商 AI 网关的可执行入口，提供 Anthropic 兼容的
/anthropic/v1/messages HTTP API、供应商控制面、健康检查和版本查询等
子命令。程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus
指标采集以及配置热重载，分类、排序与故障转移均由 gateway/core 驱动。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动网关）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、OTelTracing、CORS、RateLimiter（基于 IP）、
    JWTAuth（HS256，仅保护控制面路由）
  - 配置热重载：HotReloadManager 监听文件变更，回调直接调用
    GatewayCore.ReloadDescriptors 使供应商集合与磁盘配置保持同步
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止热更新 → 关闭 HTTP → 关闭 Metrics →
    关闭 OTel Provider → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置

本包不再携带数据库迁移子命令或 API Key / 租户认证：网关本身不持有
持久化存储，也没有多租户概念，一份供应商配置服务所有调用方。
*/
package main
