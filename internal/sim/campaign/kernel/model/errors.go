package model

import "errors"

// ErrUnknownFaction is wrapped by every lookup that names a faction the
// state or the competence catalog does not know.
var ErrUnknownFaction = errors.New("unknown faction")
