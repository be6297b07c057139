package population

import "math/rand"

// Attribute pools for randomly seeded citizens
var (
	Personalities = []string{
		"extrovert", "introvert", "analytical", "creative", "organized", "spontaneous",
		"ambitious", "relaxed", "traditional", "progressive", "optimistic", "realistic",
		"emotional", "rational", "adventurous", "cautious", "confident", "humble",
	}

	Hobbies = []string{
		"reading", "painting", "gardening", "cooking", "photography", "music",
		"sports", "traveling", "writing", "dancing", "meditation", "gaming",
		"hiking", "collecting", "volunteering", "fishing", "crafting",
	}

	Occupations = []string{
		"teacher", "doctor", "engineer", "artist", "chef", "writer",
		"entrepreneur", "police officer", "nurse", "architect", "mechanic",
		"programmer", "lawyer", "musician", "shopkeeper", "librarian",
	}

	// FallbackOccupations seeds the themed pool when the generator fails
	FallbackOccupations = []string{"Urban Planner", "Sustainability Consultant", "Community Organizer"}
)

// OccupationPoolSize is how many occupations a themed pool asks for
const OccupationPoolSize = 20

// pick returns n distinct items drawn without replacement
func pick(rnd *rand.Rand, list []string, n int) []string {
	if n > len(list) {
		n = len(list)
	}
	out := make([]string, n)
	for i, j := range rnd.Perm(len(list))[:n] {
		out[i] = list[j]
	}
	return out
}
