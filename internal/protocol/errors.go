package protocol

import (
	"errors"

	"statecraft.ai/internal/sim/campaign/feature/commitment"
	"statecraft.ai/internal/sim/campaign/feature/territory"
	"statecraft.ai/internal/sim/campaign/feature/treaty"
	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
	"statecraft.ai/internal/sim/scenario"
)

const (
	// Input validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Structural errors; fatal for the turn.
	ErrUnknownFaction    = "E_UNKNOWN_FACTION"
	ErrUnknownCompetence = "E_UNKNOWN_COMPETENCE"
	ErrUnknownClauseKind = "E_UNKNOWN_CLAUSE_KIND"
	ErrUnknownRegion     = "E_UNKNOWN_REGION"
	ErrMalformedScope    = "E_MALFORMED_SCOPE"
	ErrMalformedClause   = "E_MALFORMED_CLAUSE"
	ErrInvalidScenario   = "E_INVALID_SCENARIO"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:        {},
	ErrUnknownFaction:    {},
	ErrUnknownCompetence: {},
	ErrUnknownClauseKind: {},
	ErrUnknownRegion:     {},
	ErrMalformedScope:    {},
	ErrMalformedClause:   {},
	ErrInvalidScenario:   {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Code maps an engine error to its wire code. nil maps to "".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrUnknownFaction):
		return ErrUnknownFaction
	case errors.Is(err, catalogs.ErrUnknownCompetence):
		return ErrUnknownCompetence
	case errors.Is(err, treaty.ErrUnknownClauseKind):
		return ErrUnknownClauseKind
	case errors.Is(err, commitment.ErrUnknownRegion):
		return ErrUnknownRegion
	case errors.Is(err, treaty.ErrMalformedScope):
		return ErrMalformedScope
	case errors.Is(err, treaty.ErrMalformedClause), errors.Is(err, commitment.ErrMalformedAssign):
		return ErrMalformedClause
	case errors.Is(err, scenario.ErrInvalid):
		return ErrInvalidScenario
	case errors.Is(err, territory.ErrNegativeAmount):
		return ErrBadRequest
	}
	return ErrInternal
}
