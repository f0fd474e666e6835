// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、后端提供商、路由/故障转移、健康状态机与限流五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter 与 Histogram 两类
    Prometheus 向量指标（不含 Gauge），按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 提供商指标：请求总数、请求耗时、Token 用量（input/output），
    按 provider/model 分组。
  - 路由与故障转移指标：路由决策计数（按策略/提供商）、
    故障转移尝试计数（按提供商/结果）。
  - 健康状态机指标：状态转换计数、熔断触发计数，按 provider 分组。
  - 限流指标：准入与拒绝计数，按 provider 分组。
  - 流式指标：流式字节数、chunk 数、flush 调用次数，按 provider 分组。
*/
package metrics
