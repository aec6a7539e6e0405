// Package service contains the inference run workflow for reactoruq.
//
// InferenceService loads a model, drives its chains, summarises the draws
// and hands the results to whatever storage it was built with. The CLI
// builds it without repositories and reads the outcome directly; the API
// server and worker build it with the Postgres run repository, the
// ClickHouse draw repository and an exporter.
//
// # Architecture
//
// The service layer sits between:
//   - HTTP handlers and asynq task handlers
//   - Repository implementations (data access layer)
//
// Services depend on repository interfaces defined in this package, so
// tests substitute testify mocks for the databases.
//
// # Thread Safety
//
// InferenceService is safe for concurrent use. Each Run builds its own
// model and sampler driver.
package service
