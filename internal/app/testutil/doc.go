// Package testutil provides test doubles and fixtures shared across packages.
//
// It contains three groups of helpers:
//
// 1. Model doubles (models.go):
//   - MockConverter, MockDiarizer, MockTranscriber, MockEnricher: configurable
//     stand-ins for the worker's model handle with call tracking
//   - StaticProber: an audio prober that reports a fixed duration
//
// 2. Fixtures (fixtures.go):
//   - TwoSpeakerSegments / TwoSpeakerSpans: the canonical two speaker scenario
//   - NewCompletedJob: a finished job for encoder and handler tests
//   - WriteFile: creates a small file in a test temp dir
//
// 3. Service mocks (mock_services.go):
//   - MockJobService, MockHealthService: testify mocks of the HTTP layer services
package testutil
