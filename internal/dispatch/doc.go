// Package dispatch turns an authenticated push delivery into check runs.
//
// For every commit, in payload order and one at a time, the dispatcher:
//
//  1. splits repository.full_name into owner and repo (skip the commit if it is not owner/repo)
//  2. creates an in_progress check run on the commit SHA (skip the rest on failure)
//  3. runs the configured command (skip the update if it cannot be spawned)
//  4. updates the same check run to completed with success or failure and the captured output
//
// Failures are contained to the commit that produced them. Each commit yields an
// Outcome, collected into a BatchResult that is logged, published to the event hub
// and handed to the history recorder. Nothing is retried.
package dispatch
