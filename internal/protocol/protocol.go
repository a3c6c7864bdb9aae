package protocol

import (
	"encoding/json"

	"statecraft.ai/internal/sim/campaign"
	"statecraft.ai/internal/sim/campaign/feature/treaty"
	"statecraft.ai/internal/sim/campaign/kernel/model"
)

const Version = "1.0"

// Message types.
const (
	TypeTurn   = "TURN"
	TypeTreaty = "TREATY"
	TypeLedger = "LEDGER"
	TypeDraft  = "DRAFT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// TURN: one resolved turn.
type TurnMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	Turn            int                 `json:"turn"`
	Digest          string              `json:"digest"`
	Report          campaign.TurnReport `json:"report"`
}

func NewTurnMsg(rep campaign.TurnReport) TurnMsg {
	return TurnMsg{Type: TypeTurn, ProtocolVersion: Version, Turn: rep.Turn, Digest: rep.Digest, Report: rep}
}

// TREATY: evaluation (and possibly application) of one draft.
type TreatyMsg struct {
	Type            string                 `json:"type"`
	ProtocolVersion string                 `json:"protocol_version"`
	Turn            int                    `json:"turn"`
	TreatyID        string                 `json:"treaty_id"`
	Outcome         campaign.TreatyOutcome `json:"outcome"`
}

func NewTreatyMsg(turn int, out campaign.TreatyOutcome) TreatyMsg {
	return TreatyMsg{Type: TypeTreaty, ProtocolVersion: Version, Turn: turn, TreatyID: out.Acceptance.TreatyID, Outcome: out}
}

// LEDGER: one negotiation ledger entry, as appended.
type LedgerMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Entry           model.LedgerEntry `json:"entry"`
}

func NewLedgerMsg(e model.LedgerEntry) LedgerMsg {
	return LedgerMsg{Type: TypeLedger, ProtocolVersion: Version, Entry: e}
}

// DRAFT: a treaty proposal submitted at a given turn.
type DraftMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Draft           treaty.Draft `json:"draft"`
	// Apply the draft if accepted; otherwise only evaluate.
	Apply bool `json:"apply,omitempty"`
}

func DecodeDraftMsg(b []byte) (DraftMsg, error) {
	var m DraftMsg
	if err := json.Unmarshal(b, &m); err != nil {
		return DraftMsg{}, err
	}
	return m, nil
}
