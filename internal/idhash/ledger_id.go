// Package idhash derives deterministic UUID v5 identifiers for ledger records.
package idhash

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// namespace scopes all ledger IDs so they never collide with other v5 UUIDs.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("equity-backtester/ledger"))

// ComputeRoundTripID computes a deterministic round trip ID (UUID v5).
// Formula: UUIDv5(ns, "rt|ticker|entry_date|seq")
// seq is the portfolio-local open counter, so reruns reproduce the same IDs.
func ComputeRoundTripID(ticker string, entryDate time.Time, seq int) string {
	data := fmt.Sprintf("rt|%s|%s|%d",
		ticker,
		entryDate.UTC().Format("2006-01-02"),
		seq,
	)
	return uuid.NewSHA1(namespace, []byte(data)).String()
}

// ComputeTransactionID computes a deterministic transaction ID (UUID v5).
// Formula: UUIDv5(ns, "tx|roundtrip_id|index")
func ComputeTransactionID(roundTripID string, index int) string {
	data := fmt.Sprintf("tx|%s|%d", roundTripID, index)
	return uuid.NewSHA1(namespace, []byte(data)).String()
}

// ComputeRunID computes a deterministic run ID (UUID v5) from a canonical
// encoding of the run configuration.
func ComputeRunID(canonical []byte) string {
	data := append([]byte("run|"), canonical...)
	return uuid.NewSHA1(namespace, data).String()
}
