// Copyright 2026 Aimux Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config 提供 Aimux 网关的配置管理功能。

# 概述

config 包负责网关配置的完整生命周期管理，包括多源加载、
运行时热重载、变更审计与 HTTP 管理 API。配置按
"默认值 -> YAML 文件 -> 环境变量" 的优先级合并。

# 核心结构

  - Config: 顶层配置聚合，涵盖 Server、Providers、Routing、
    Failover、CircuitBreaker、Deadlines、Prettifier、Log、
    Telemetry、Auth
  - ProviderConfig: 单个后端提供方的磁盘/环境表示，
    凭证只以 CredentialEnvVar 命名，实际值在 Descriptor()
    中懒解析，从不写回 YAML
  - Loader: 配置加载器，支持 Builder 模式链式设置
    文件路径、环境变量前缀与自定义验证器
  - HotReloadManager: 热重载管理器，支持文件监听、
    局部字段更新、变更回调、版本化历史
  - FileWatcher: 文件变更监听器，基于轮询 + 去抖机制
    触发配置重载
  - ConfigAPIHandler: HTTP API 处理器，提供配置查询、
    更新、热重载触发与变更历史查询端点

# 主要能力

  - 多源加载: YAML 文件、环境变量（AIMUX_ 前缀）、默认值
  - 热重载: 文件监听自动重载 + API 手动触发，支持字段级更新
  - 凭证隔离: 提供方凭证从不进入 Config 结构体，仅在调用时
    通过 CredentialEnvVar 从环境解析
  - 安全治理: 敏感字段脱敏、API Key 经 X-API-Key Header 或
    api_key 查询参数传递、CORS 控制
  - 变更审计: 环形缓冲历史记录（上限 1000 条）
  - 配置验证: 路由策略、故障转移次数、熔断阈值、截止时间
    与提供方 id 唯一性的内置校验

# 使用示例

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("AIMUX").
		Load()
*/
package config
