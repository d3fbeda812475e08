package raid

// Apply maps one incoming reaction onto a roster and returns the next
// roster plus whether anything changed. It is total over its input domain:
// a no-op is a valid result, never an error.
//
// Rules:
//   - role symbols upsert: a fresh entry joins as confirmed; an existing
//     entry (any role) is replaced with the new role, status reset to
//     confirmed. Last symbol wins, roles are not additive.
//   - status symbols require an existing entry. Reapplying the stored
//     status un-marks it (back to confirmed); a different status simply
//     overwrites. Role is preserved.
//   - cancel removes the entry entirely.
//   - anything else is ignored.
//
// The input slice is never mutated.
func Apply(roster []Participant, userID, display, alias string, sym Symbol) ([]Participant, bool) {
	cur, present := find(roster, userID)

	if role, ok := sym.RoleValue(); ok {
		next := Participant{
			UserID:  userID,
			Display: display,
			Alias:   alias,
			Role:    role,
			Status:  StatusConfirmed,
		}
		if present && cur == next {
			return roster, false
		}
		return append(without(roster, userID), next), true
	}

	if status, ok := sym.StatusValue(); ok {
		if !present {
			return roster, false
		}
		if cur.Status == status {
			cur.Status = StatusConfirmed
		} else {
			cur.Status = status
		}
		return append(without(roster, userID), cur), true
	}

	if sym == SymbolCancel {
		if !present {
			return roster, false
		}
		return without(roster, userID), true
	}

	return roster, false
}

func find(roster []Participant, userID string) (Participant, bool) {
	for _, p := range roster {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func without(roster []Participant, userID string) []Participant {
	out := make([]Participant, 0, len(roster))
	for _, p := range roster {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	return out
}
