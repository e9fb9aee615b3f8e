//go:build e2e

// Package e2e runs the stop video suite against a real conference server
// with real Chrome sessions.
//
// These tests are isolated from the standard test suite via build tags.
// They require a Chrome browser (auto-downloaded by Rod if not present)
// with fake media devices.
//
// Running E2E tests:
//
//	go test -tags=e2e ./e2e/...
//
// Each test starts its own conference server on a random port and its own
// browsers, and points them at a room named after the test.
package e2e
