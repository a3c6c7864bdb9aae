package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// LedgerEntryID formats a negotiation ledger id. seq is the 1-based running
// count of entries sharing (faction, reason).
func LedgerEntryID(turn int, factionID, kind, reason string, seq int) string {
	return fmt.Sprintf("NEG_T%04d_%s_%s_%s_%03d", turn, factionID, kind, reason, seq)
}

// ParseLedgerSeq extracts the trailing sequence number of a ledger id.
func ParseLedgerSeq(id string) (int, bool) {
	if !strings.HasPrefix(id, "NEG_T") {
		return 0, false
	}
	i := strings.LastIndexByte(id, '_')
	if i < 0 || i+1 >= len(id) {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func OfferID(turn int, kind string, parties []string) string {
	return fmt.Sprintf("OFFER_T%04d_%s_%s", turn, kind, strings.Join(parties, "_"))
}

func RegionID(sideA, sideB string) string {
	if sideB < sideA {
		sideA, sideB = sideB, sideA
	}
	return fmt.Sprintf("REGION_%s_%s", sideA, sideB)
}
