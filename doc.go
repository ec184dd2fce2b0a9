// Package docintel is a document intelligence assistant: it ingests a
// document corpus into a vector index and a structured SQL store, then
// answers questions over both through a cyclic plan/act/respond agent
// graph with verifiable source citations.
//
// The building blocks:
//
//   - graph:    generic state-graph engine with conditional edges, a
//     bounded execution loop and streamed execution events
//   - agent:    the planner / tool-executor / finalizer nodes and the
//     per-turn state they share
//   - tool:     the fixed tool set (chunk retrieval, full-document
//     retrieval, natural-language SQL)
//   - session:  per-session state persistence (memory, Redis, Postgres)
//   - ingest:   corpus loading, category discovery, schema design,
//     record extraction and chunk indexing
//   - server:   the HTTP/SSE transport
//
// The docintel command under cmd/docintel wires everything together.
package docintel
