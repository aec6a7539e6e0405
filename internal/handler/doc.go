// Package handler contains HTTP request handlers for the reactoruq API.
//
// Handlers parse requests, call the inference service and map its
// application errors to HTTP responses. Runs are executed by the workers;
// creating a run only records it and enqueues it.
//
// # Route Organization
//
//   - /api/v1/runs/* - run submission, status, summaries and draws
//   - /health, /livez, /readyz - probes
//   - /metrics - Prometheus scrape endpoint
package handler
