package matcher

import (
	"fmt"
	"sort"
	"strings"

	"card-reconciliation-service/internal/models"
)

// EdgeCaseHandler reports batch-level anomalies the per-settlement matcher
// cannot see. It never changes a matching decision.
type EdgeCaseHandler struct {
	claims map[string][]string // line id -> settlement ids, in claim order
	order  []string
}

// NewEdgeCaseHandler creates a new edge case handler
func NewEdgeCaseHandler() *EdgeCaseHandler {
	return &EdgeCaseHandler{
		claims: make(map[string][]string),
	}
}

// DuplicateGroup represents settlements that look like the same sale ingested
// more than once.
type DuplicateGroup struct {
	GroupID     string
	Settlements []*models.CardSettlement
	Reason      string
}

// ContentionGroup is a bank line committed to more than one settlement in the
// same run.
type ContentionGroup struct {
	LineID        string
	SettlementIDs []string
}

// DetectDuplicates groups settlements of the same company, operator, sale day
// and amounts. Groups come out in the order of their first member.
func (ech *EdgeCaseHandler) DetectDuplicates(settlements []*models.CardSettlement) []DuplicateGroup {
	byKey := make(map[string][]*models.CardSettlement)
	var keys []string

	for _, s := range settlements {
		key := duplicateKey(s)
		if _, exists := byKey[key]; !exists {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], s)
	}

	var groups []DuplicateGroup
	for _, key := range keys {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		first := members[0]
		groups = append(groups, DuplicateGroup{
			GroupID:     fmt.Sprintf("DUP_%s", first.ID),
			Settlements: members,
			Reason: fmt.Sprintf("%d settlements from %s on %s with gross %s and net %s",
				len(members), first.Operator, first.SaleDate.Format(models.DateLayout),
				first.GrossAmount.StringFixed(2), first.NetAmount.StringFixed(2)),
		})
	}

	return groups
}

func duplicateKey(s *models.CardSettlement) string {
	return strings.Join([]string{
		s.CompanyCNPJ,
		strings.ToLower(strings.TrimSpace(s.Operator)),
		strings.ToLower(strings.TrimSpace(s.Brand)),
		models.Day(s.SaleDate).Format(models.DateLayout),
		s.GrossAmount.String(),
		s.NetAmount.String(),
	}, "|")
}

// RecordClaim notes that a settlement was committed against a line.
func (ech *EdgeCaseHandler) RecordClaim(lineID, settlementID string) {
	if _, exists := ech.claims[lineID]; !exists {
		ech.order = append(ech.order, lineID)
	}
	ech.claims[lineID] = append(ech.claims[lineID], settlementID)
}

// Contention returns the lines claimed by more than one settlement, sorted by
// line id.
func (ech *EdgeCaseHandler) Contention() []ContentionGroup {
	var groups []ContentionGroup
	for _, lineID := range ech.order {
		ids := ech.claims[lineID]
		if len(ids) < 2 {
			continue
		}
		groups = append(groups, ContentionGroup{
			LineID:        lineID,
			SettlementIDs: append([]string(nil), ids...),
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].LineID < groups[j].LineID
	})
	return groups
}
