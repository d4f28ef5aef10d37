// Package api implements the HTTP surface: a gorilla/mux router exposing
// file upload/download, application discovery, job submission and
// lifecycle, output-artifact retrieval, and accounting endpoints under
// /api/v1. Every response is a JSON object carrying at least a "status"
// field (human text, empty on success) plus whatever fields the endpoint
// documents.
package api
