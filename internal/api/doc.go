// Package api exposes the REST surface for running swarm verifications,
// submitting asynchronous verification jobs, and retrieving stored results.
package api
