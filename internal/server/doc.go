// Package server hosts the Fiber HTTP service for charatag: the /v1 API that
// turns dataset characters into tags and preview bitmaps, plus the request
// middleware chain (request IDs, access logging, panic recovery). Handlers
// receive their collaborators (dataset library, preview cache) as explicit
// dependencies so tests can inject fakes; keep exports narrow.
package server
