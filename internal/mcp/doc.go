// Package mcp serves a coderag collection over the Model Context Protocol.
//
// The server speaks JSON-RPC 2.0 on stdio and exposes four tools:
//
//	index_repository  {path}                      index a local repository
//	retrieve          {query, k, strategy, expand} ranked fragments for a question
//	collection_stats  {}                          size, backend and embedding model
//	delete_collection {}                          drop the persisted collection
//
// Tool results are JSON text. Failures are returned as *MCPError:
//
//	-32602  invalid parameters (bad path, k out of range, unknown strategy)
//	-32603  internal error (embedding provider, storage, incompatible index)
//	-32002  another indexing operation is running
//	-32004  empty query
//
// A retrieve result carries the strategy used, the fragments in rank order
// and, for code_search, a relevance score per fragment. With expand set, the
// neighbouring fragments of each hit are returned under "context".
package mcp
