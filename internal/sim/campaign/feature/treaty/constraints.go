package treaty

import (
	"sort"

	"statecraft.ai/internal/sim/campaign/kernel/model"
	"statecraft.ai/internal/sim/catalogs"
)

type RejectionReason string

const (
	RejectNone               RejectionReason = ""
	RejectBundleIncomplete   RejectionReason = "competence_bundle_incomplete"
	RejectForbiddenToFaction RejectionReason = "competence_forbidden_to_faction"
	RejectForbiddenHolder    RejectionReason = "competence_forbidden_holder"
	RejectBrckoUnresolved    RejectionReason = "brcko_unresolved"
	RejectMultipleHolders    RejectionReason = "competence_multiple_holders"
	RejectTargetRejected     RejectionReason = "target_rejected"
	RejectNoTargets          RejectionReason = "no_targets"
)

type RejectionDetails struct {
	Bundle      string   `json:"bundle,omitempty"`
	Competences []string `json:"competences,omitempty"`
	Competence  string   `json:"competence,omitempty"`
	Faction     string   `json:"faction,omitempty"`
	Clauses     []string `json:"clauses,omitempty"`
}

type allocation struct {
	competence string
	holder     string
	clauseID   string
}

func allocations(d Draft) []allocation {
	var out []allocation
	for _, c := range d.Clauses {
		if a, ok := c.(AllocateCompetence); ok {
			out = append(out, allocation{competence: a.Competence, holder: a.Holder, clauseID: a.ID})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].competence != out[j].competence {
			return out[i].competence < out[j].competence
		}
		return out[i].holder < out[j].holder
	})
	return out
}

func holdersByCompetence(allocs []allocation) map[string][]string {
	out := map[string][]string{}
	for _, a := range allocs {
		hs := out[a.competence]
		if len(hs) == 0 || hs[len(hs)-1] != a.holder {
			out[a.competence] = append(hs, a.holder)
		}
	}
	return out
}

// checkConstraints runs the structural rules in their fixed order and
// returns the first violation.
func checkConstraints(cat *catalogs.CompetenceCatalog, d Draft) (RejectionReason, *RejectionDetails) {
	allocs := allocations(d)
	holders := holdersByCompetence(allocs)

	for _, b := range cat.Bundles {
		allocated := 0
		holder := ""
		same := true
		for _, m := range b.Competences {
			hs := holders[m]
			if len(hs) == 0 {
				continue
			}
			allocated++
			if len(hs) > 1 || (holder != "" && hs[0] != holder) {
				same = false
			}
			if holder == "" {
				holder = hs[0]
			}
		}
		if allocated == 0 || (allocated == len(b.Competences) && same) {
			continue
		}
		return RejectBundleIncomplete, &RejectionDetails{
			Bundle:      b.ID,
			Competences: append([]string(nil), b.Competences...),
		}
	}

	for _, a := range allocs {
		if cat.ForbiddenTo(a.competence, a.holder) {
			return RejectForbiddenToFaction, &RejectionDetails{Competence: a.competence, Faction: a.holder, Clauses: nonEmpty(a.clauseID)}
		}
	}

	for _, a := range allocs {
		if h, ok := cat.ForbiddenHolder(a.competence); ok && h == a.holder {
			return RejectForbiddenHolder, &RejectionDetails{Competence: a.competence, Faction: a.holder, Clauses: nonEmpty(a.clauseID)}
		}
	}

	var triggering []string
	for _, c := range d.Clauses {
		if c.Kind().peaceTriggering() {
			triggering = append(triggering, c.Header().ID)
		}
	}
	if len(triggering) > 0 && !d.has(KindBrckoSpecialStatus) {
		sort.Strings(triggering)
		return RejectBrckoUnresolved, &RejectionDetails{Clauses: triggering}
	}

	for _, comp := range model.SortedKeys(holders) {
		if hs := holders[comp]; len(hs) > 1 {
			return RejectMultipleHolders, &RejectionDetails{Competence: comp, Competences: []string{comp}}
		}
	}
	return RejectNone, nil
}

func nonEmpty(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
