package room

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

var adjectives = []string{
	"amber", "brisk", "calm", "dusty", "eager", "fuzzy", "gentle", "hollow", "icy", "jolly",
	"keen", "lively", "mellow", "nimble", "odd", "plucky", "quiet", "rusty", "sunny", "tidy",
}

var animals = []string{
	"otter", "panda", "koala", "heron", "lynx", "marmot", "narwhal", "ocelot", "puffin", "quokka",
	"raven", "salmon", "tapir", "urchin", "vole", "walrus", "yak", "zebra", "badger", "bison",
}

var places = []string{
	"harbor", "meadow", "canyon", "summit", "lagoon", "glacier", "orchard", "prairie", "delta", "grove",
	"island", "marsh", "quarry", "ridge", "tundra", "valley", "beach", "forest", "dune", "crater",
}

// NewIdentity returns a fresh random identity for this client.
func NewIdentity() string {
	return uuid.NewString()
}

// GenerateName creates a random, memorable room name.
// Format: adjective-animal-place (e.g., "plucky-otter-harbor").
func GenerateName() (string, error) {
	parts := make([]string, 0, 3)
	for _, list := range [][]string{adjectives, animals, places} {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
		if err != nil {
			return "", fmt.Errorf("generate room name: %w", err)
		}
		parts = append(parts, list[n.Int64()])
	}
	return fmt.Sprintf("%s-%s-%s", parts[0], parts[1], parts[2]), nil
}
