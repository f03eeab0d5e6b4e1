// Package observability provides structured logging and metrics for docchat.
//
// Loggers are zap-based. ContextLogger attaches request-scoped fields
// (request id, user id) that middleware stores on the context. Metrics are
// exported through Prometheus and cover the degraded paths of the RAG
// pipeline: embedding fallbacks, ungrounded retrievals, stream outcomes and
// assistant messages lost after a completed stream.
package observability
