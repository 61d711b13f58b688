// api/models/catalog.go
package models

// catalogEntry is the compact form the static funnel catalog is declared in.
type catalogEntry struct {
	Key      string
	Name     string
	Category StepCategory
}

// staticCatalog is the expected page flow of the quiz funnel, in declared
// order. Ordinals are assigned from slice index (1-based), so the list order
// must not be reshuffled once aggregates reference these positions.
var staticCatalog = []catalogEntry{
	{"landing", "Landing Page", CategoryInterstitial},
	{"goal_selection", "Goal Selection", CategoryQuestion},
	{"gender", "Gender", CategoryQuestion},
	{"age_range", "Age Range", CategoryQuestion},
	{"body_type_current", "Current Body Type", CategoryQuestion},
	{"body_type_goal", "Goal Body Type", CategoryQuestion},
	{"target_zones", "Target Zones", CategoryQuestion},
	{"last_ideal_weight", "Last Time At Ideal Weight", CategoryQuestion},
	{"weight_loss_speed", "Weight Loss Speed", CategoryQuestion},
	{"testimonial_sarah", "Testimonial Sarah", CategorySocialProof},
	{"activity_level", "Activity Level", CategoryQuestion},
	{"daily_walking", "Daily Walking", CategoryQuestion},
	{"flights_of_stairs", "Flights Of Stairs", CategoryQuestion},
	{"energy_levels", "Energy Levels", CategoryQuestion},
	{"sleep_duration", "Sleep Duration", CategoryQuestion},
	{"water_intake", "Water Intake", CategoryQuestion},
	{"diet_type", "Diet Type", CategoryQuestion},
	{"meals_per_day", "Meals Per Day", CategoryQuestion},
	{"food_cravings", "Food Cravings", CategoryQuestion},
	{"alcohol_frequency", "Alcohol Frequency", CategoryQuestion},
	{"progress_graph_intro", "Progress Graph Intro", CategoryInterstitial},
	{"medical_conditions", "Medical Conditions", CategoryHealth},
	{"medications", "Medications", CategoryHealth},
	{"pregnancy_status", "Pregnancy Status", CategoryHealth},
	{"pregnancy_disqualified", "Pregnancy Disqualified", CategoryDisqualification},
	{"bmi_check", "BMI Check", CategoryHealth},
	{"bmi_disqualified", "BMI Disqualified", CategoryDisqualification},
	{"allergies", "Allergies", CategoryHealth},
	{"digestive_issues", "Digestive Issues", CategoryHealth},
	{"testimonial_mark", "Testimonial Mark", CategorySocialProof},
	{"motivation_event", "Motivation Event", CategoryQuestion},
	{"event_date", "Event Date", CategoryQuestion},
	{"past_attempts", "Past Attempts", CategoryQuestion},
	{"habit_stacking", "Habit Stacking", CategoryQuestion},
	{"commitment_level", "Commitment Level", CategoryQuestion},
	{"science_explainer", "Science Explainer", CategoryInterstitial},
	{"expert_endorsement", "Expert Endorsement", CategorySocialProof},
	{"height_input", "Height Input", CategoryQuestion},
	{"weight_input", "Weight Input", CategoryQuestion},
	{"goal_weight_input", "Goal Weight Input", CategoryQuestion},
	{"plan_building", "Plan Building", CategoryInterstitial},
	{"projected_results", "Projected Results", CategoryInterstitial},
	{"email_capture", "Email Capture", CategoryQuestion},
	{"name_capture", "Name Capture", CategoryQuestion},
	{"results_summary", "Results Summary", CategoryInterstitial},
	{"success_stories", "Success Stories", CategorySocialProof},
	{"plan_offer", "Plan Offer", CategoryCheckout},
	{"discount_reveal", "Discount Reveal", CategoryCheckout},
	{"checkout", "Checkout", CategoryCheckout},
	{"payment", "Payment", CategoryCheckout},
	{"payment_successful", "Payment Successful", CategoryConversion},
	{"upsell_coaching", "Upsell Coaching", CategoryCheckout},
	{"upsell_purchased", "Upsell Purchased", CategoryConversion},
	{"onboarding_intro", "Onboarding Intro", CategoryInterstitial},
	{"app_download", "App Download", CategoryInterstitial},
}

// StaticCatalog returns the expected step definitions in catalog order, with
// 1-based positions and terminal markers derived from category.
func StaticCatalog() []StepDefinition {
	defs := make([]StepDefinition, 0, len(staticCatalog))
	for i, e := range staticCatalog {
		defs = append(defs, StepDefinition{
			StepKey:            e.Key,
			Name:               e.Name,
			Position:           i + 1,
			Category:           e.Category,
			IsPurchaseComplete: e.Category == CategoryConversion,
			IsDisqualification: e.Category == CategoryDisqualification,
		})
	}
	return defs
}

// PurchaseCompleteKeys returns the step keys whose presence in an entry marks
// it as completed, as a membership set.
func PurchaseCompleteKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, e := range staticCatalog {
		if e.Category == CategoryConversion {
			keys[e.Key] = true
		}
	}
	return keys
}
