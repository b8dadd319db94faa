// Package memory provides a local, dual-backend memory store for
// conversational agents.
//
// Records are persisted in two independently-indexed stores under one
// write/read/delete contract:
//   - StructuredIndex: exact/substring/category/date-range lookup (SQLite)
//   - VectorIndex: nearest-neighbor similarity lookup (chromem-go)
//
// A write lands in the structured index synchronously; embedding and vector
// insertion happen on a background queue, reconciled through the record's
// HasEmbedding flag. Reads are routed per query by a pattern heuristic
// (Classify) to the structured or the vector index, and recall degrades to
// structured-only whenever the vector side is unavailable.
//
// Architecture:
//   - Record: the canonical memory entity
//   - StructuredIndex / VectorIndex: storage backend interfaces
//   - Gateway: lazy, failure-isolated text-to-vector embedding
//   - Manager: orchestrates store/recall/forget/stats, retention, shutdown
//
// Local implementation:
//   - store/sqlite (single database file, survives restarts)
//   - store/chromem (embedded vector database, persists to a directory)
//   - embedder/onnx with all-MiniLM-L6-v2 (real semantic search, offline)
//   - embedder/mock for tests and builds without the onnx tag
package memory
