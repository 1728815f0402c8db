// Package referral computes a referrer's roster of referral slots and
// overlays the members already registered into them.
package referral

import (
	"xsch-membership-backend/pkg/models"
)

// SlotKind 名额类型
type SlotKind string

const (
	SlotGuest     SlotKind = "guest"
	SlotVolunteer SlotKind = "volunteer"
)

// Slot describes one positional reservation in a referrer's roster.
type Slot struct {
	Index            int               `json:"slot_index"`
	Kind             SlotKind          `json:"kind"`
	TargetMemberType models.MemberType `json:"target_member_type"`
	TargetTier       *int              `json:"target_tier"`
}

// SlotStatus 名额展示状态
type SlotStatus string

const (
	StatusEmptyGuest     SlotStatus = "empty-guest"
	StatusEmptyVolunteer SlotStatus = "empty-volunteer"
	StatusFilledPending  SlotStatus = "filled-pending"
	StatusFilledVerified SlotStatus = "filled-verified"
	StatusFilledRejected SlotStatus = "filled-rejected"
)

// Filled reports whether the status belongs to an occupied slot
func (s SlotStatus) Filled() bool {
	switch s {
	case StatusFilledPending, StatusFilledVerified, StatusFilledRejected:
		return true
	}
	return false
}

// SlotView is a slot merged with the member occupying it, if any.
type SlotView struct {
	Slot
	Status SlotStatus     `json:"status"`
	Member *models.Member `json:"member,omitempty"`
}

// Conflict reports several referral records claiming the same slot index.
type Conflict struct {
	Index     int             `json:"slot_index"`
	Kept      models.Member   `json:"kept"`
	Discarded []models.Member `json:"discarded"`
}

// ComputeSlots returns the ordered roster for referrer. Guest slots come
// first, followed by volunteer slots one tier above the referrer.
func ComputeSlots(referrer models.Member) []Slot {
	tmpl := referrer.MemberType.SlotTemplate()
	slots := make([]Slot, 0, tmpl.Size())

	for i := 1; i <= tmpl.Guests; i++ {
		slots = append(slots, Slot{
			Index:            i,
			Kind:             SlotGuest,
			TargetMemberType: models.MemberTypeGuest,
		})
	}

	if tmpl.Volunteers > 0 {
		tier := referrer.TierOrDefault() + 1
		for i := 1; i <= tmpl.Volunteers; i++ {
			t := tier
			slots = append(slots, Slot{
				Index:            tmpl.Guests + i,
				Kind:             SlotVolunteer,
				TargetMemberType: models.MemberTypeVolunteer,
				TargetTier:       &t,
			})
		}
	}

	return slots
}

// Reconcile overlays records onto slots. Records are expected in creation
// order; for a slot claimed more than once the most recently created record
// wins (ties go to the later record) and the rest are reported as a Conflict.
// Records without a slot index, or with one outside the roster, are ignored.
func Reconcile(slots []Slot, records []models.Member) ([]SlotView, []Conflict) {
	byIndex := make(map[int][]models.Member, len(slots))
	for _, r := range records {
		if r.SlotID == nil {
			continue
		}
		byIndex[*r.SlotID] = append(byIndex[*r.SlotID], r)
	}

	views := make([]SlotView, 0, len(slots))
	var conflicts []Conflict

	for _, s := range slots {
		claims := byIndex[s.Index]
		if len(claims) == 0 {
			views = append(views, SlotView{Slot: s, Status: emptyStatus(s)})
			continue
		}

		winner := 0
		for i := 1; i < len(claims); i++ {
			if !claims[i].CreatedAt.Before(claims[winner].CreatedAt) {
				winner = i
			}
		}

		kept := claims[winner]
		if len(claims) > 1 {
			discarded := make([]models.Member, 0, len(claims)-1)
			for i, c := range claims {
				if i != winner {
					discarded = append(discarded, c)
				}
			}
			conflicts = append(conflicts, Conflict{Index: s.Index, Kept: kept, Discarded: discarded})
		}

		views = append(views, SlotView{Slot: s, Status: filledStatus(kept.IsVerified), Member: &kept})
	}

	return views, conflicts
}

func emptyStatus(s Slot) SlotStatus {
	if s.Kind == SlotVolunteer {
		return StatusEmptyVolunteer
	}
	return StatusEmptyGuest
}

func filledStatus(v models.VerificationStatus) SlotStatus {
	switch v {
	case models.VerificationVerified:
		return StatusFilledVerified
	case models.VerificationRejected:
		return StatusFilledRejected
	default:
		return StatusFilledPending
	}
}

// FindSlot 按序号查找名额
func FindSlot(slots []Slot, index int) (Slot, bool) {
	for _, s := range slots {
		if s.Index == index {
			return s, true
		}
	}
	return Slot{}, false
}
