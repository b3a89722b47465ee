package registry

import "math/rand"

var (
	adjectives = []string{
		"crimson", "azure", "golden", "silver", "emerald", "coral", "violet", "amber",
		"scarlet", "cobalt", "jade", "ivory", "onyx", "ruby", "sapphire", "topaz",
		"bronze", "copper", "indigo", "teal", "slate", "pearl", "rustic", "misty",
	}
	nouns = []string{
		"falcon", "phoenix", "dragon", "raven", "tiger", "wolf", "hawk", "eagle",
		"panther", "cobra", "viper", "sphinx", "griffin", "lynx", "orca", "puma",
		"condor", "mantis", "jaguar", "osprey", "badger", "otter", "heron", "bison",
	}
)

// GenerateName returns a random adjective-noun session name.
func GenerateName() string {
	return adjectives[rand.Intn(len(adjectives))] + "-" + nouns[rand.Intn(len(nouns))]
}
