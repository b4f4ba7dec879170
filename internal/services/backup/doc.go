// Package backup drives key backup bookkeeping: batching sessions that still
// need uploading, marking progress, and resetting markers when the server's
// backup version rotates.
package backup
