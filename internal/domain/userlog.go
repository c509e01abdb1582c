package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FoodSet is a set of foods. It encodes as a sorted JSON array.
type FoodSet map[FoodID]struct{}

func NewFoodSet(foods ...FoodID) FoodSet {
	s := make(FoodSet, len(foods))
	for _, f := range foods {
		s[f] = struct{}{}
	}
	return s
}

func (s FoodSet) Add(f FoodID) { s[f] = struct{}{} }

func (s FoodSet) Has(f FoodID) bool {
	_, ok := s[f]
	return ok
}

func (s FoodSet) Sorted() []FoodID {
	out := make([]FoodID, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s FoodSet) Clone() FoodSet {
	c := make(FoodSet, len(s))
	for f := range s {
		c[f] = struct{}{}
	}
	return c
}

func (s FoodSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *FoodSet) UnmarshalJSON(data []byte) error {
	var foods []FoodID
	if err := json.Unmarshal(data, &foods); err != nil {
		return err
	}
	*s = NewFoodSet(foods...)
	return nil
}

// Memory is the per-user log of past actions and what came of them, plus
// aggregates derived from outcomes and stated preferences.
type Memory struct {
	UserID  string   `json:"user_id"`
	Actions []Action `json:"actions"`

	SuccessfulSuggestions map[FoodID]int `json:"successful_suggestions"`
	FailedSuggestions     map[FoodID]int `json:"failed_suggestions"`

	Dislikes          FoodSet `json:"dislikes"`
	Allergies         FoodSet `json:"allergies"`
	Contraindications FoodSet `json:"contraindications"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

func NewMemory(userID string, now time.Time) *Memory {
	return &Memory{
		UserID:                userID,
		Actions:               []Action{},
		SuccessfulSuggestions: make(map[FoodID]int),
		FailedSuggestions:     make(map[FoodID]int),
		Dislikes:              NewFoodSet(),
		Allergies:             NewFoodSet(),
		Contraindications:     NewFoodSet(),
		CreatedAt:             now,
		LastUpdated:           now,
	}
}

// Clone returns a deep copy.
func (m *Memory) Clone() *Memory {
	c := *m
	c.Actions = make([]Action, len(m.Actions))
	for i, a := range m.Actions {
		a.NutrientsTargeted = append([]NutrientID(nil), a.NutrientsTargeted...)
		if a.OutcomeRecordedAt != nil {
			t := *a.OutcomeRecordedAt
			a.OutcomeRecordedAt = &t
		}
		c.Actions[i] = a
	}
	c.SuccessfulSuggestions = make(map[FoodID]int, len(m.SuccessfulSuggestions))
	for k, v := range m.SuccessfulSuggestions {
		c.SuccessfulSuggestions[k] = v
	}
	c.FailedSuggestions = make(map[FoodID]int, len(m.FailedSuggestions))
	for k, v := range m.FailedSuggestions {
		c.FailedSuggestions[k] = v
	}
	c.Dislikes = m.Dislikes.Clone()
	c.Allergies = m.Allergies.Clone()
	c.Contraindications = m.Contraindications.Clone()
	return &c
}

// ActionByID returns a pointer into Actions, or nil.
func (m *Memory) ActionByID(id uuid.UUID) *Action {
	for i := range m.Actions {
		if m.Actions[i].ID == id {
			return &m.Actions[i]
		}
	}
	return nil
}

// LastActionAt returns the timestamp of the most recent action.
func (m *Memory) LastActionAt() (time.Time, bool) {
	var last time.Time
	for _, a := range m.Actions {
		if a.Timestamp.After(last) {
			last = a.Timestamp
		}
	}
	return last, !last.IsZero()
}

// LastTargeted returns when n was most recently targeted by any action.
func (m *Memory) LastTargeted(n NutrientID) (time.Time, bool) {
	var last time.Time
	for i := range m.Actions {
		if m.Actions[i].Targets(n) && m.Actions[i].Timestamp.After(last) {
			last = m.Actions[i].Timestamp
		}
	}
	return last, !last.IsZero()
}

// Excluded reports whether the food is in dislikes, allergies or
// contraindications.
func (m *Memory) Excluded(f FoodID) bool {
	return m.Dislikes.Has(f) || m.Allergies.Has(f) || m.Contraindications.Has(f)
}

// Profile bundles the two per-user entities the persistence layer saves
// together.
type Profile struct {
	Belief *BeliefState `json:"belief"`
	Memory *Memory      `json:"memory"`
}

// Normalize replaces nil collections left by decoding older snapshots.
func (p *Profile) Normalize() {
	if b := p.Belief; b != nil {
		if b.Nutrition == nil {
			b.Nutrition = make(map[NutrientID]float64)
		}
		if b.Confidence == nil {
			b.Confidence = make(map[NutrientID]float64)
		}
		if b.Symptoms == nil {
			b.Symptoms = make(map[SymptomID]time.Time)
		}
	}
	if m := p.Memory; m != nil {
		if m.Actions == nil {
			m.Actions = []Action{}
		}
		if m.SuccessfulSuggestions == nil {
			m.SuccessfulSuggestions = make(map[FoodID]int)
		}
		if m.FailedSuggestions == nil {
			m.FailedSuggestions = make(map[FoodID]int)
		}
		if m.Dislikes == nil {
			m.Dislikes = NewFoodSet()
		}
		if m.Allergies == nil {
			m.Allergies = NewFoodSet()
		}
		if m.Contraindications == nil {
			m.Contraindications = NewFoodSet()
		}
	}
}
