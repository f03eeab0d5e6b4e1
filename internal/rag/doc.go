// Package rag implements the retrieval-augmented generation pipeline.
//
// Ingestion splits extracted text with a Chunker, embeds every chunk through
// an EmbeddingClient and writes the records to a VectorIndex. Answering a
// question goes through the Retriever (embed the question, query the index
// scoped to the asking user), the Generator (grounding prompt plus a language
// model) and the Coordinator, which streams the answer to the caller and
// persists it once the stream completes.
//
// External services are reached through small ports (EmbeddingService,
// VectorIndex, LanguageModel, ChatStore) so tests can substitute fakes.
// Failures of the embedding service and of index queries degrade to empty or
// zero-valued results flagged as Degraded rather than propagating.
package rag
