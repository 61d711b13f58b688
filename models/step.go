// api/models/step.go
package models

import "time"

// StepCategory classifies what a funnel page is for.
type StepCategory string

const (
	CategoryQuestion         StepCategory = "question"
	CategoryInterstitial     StepCategory = "interstitial"
	CategorySocialProof      StepCategory = "social_proof"
	CategoryHealth           StepCategory = "health"
	CategoryCheckout         StepCategory = "checkout"
	CategoryConversion       StepCategory = "conversion"
	CategoryDisqualification StepCategory = "disqualification"
)

// DynamicOrdinalBase is the first ordinal assigned to step keys discovered in
// event data but missing from the static catalog. Static ordinals must stay
// below this value so the two key spaces never collide.
const DynamicOrdinalBase = 1000

// StepDefinition describes one page of the funnel. Position is stable across
// runs for catalog entries; dynamically discovered steps get positions at
// DynamicOrdinalBase and above.
type StepDefinition struct {
	ID                 int          `json:"id"`
	FunnelID           int          `json:"funnel_id"`
	StepKey            string       `json:"step_key"`
	Name               string       `json:"name"`
	Position           int          `json:"position"`
	Category           StepCategory `json:"category"`
	IsPurchaseComplete bool         `json:"is_purchase_complete"`
	IsDisqualification bool         `json:"is_disqualification"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Funnel is the owning record for a set of steps and their aggregates.
type Funnel struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	FormID    string    `json:"form_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
