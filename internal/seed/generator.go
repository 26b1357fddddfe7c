// Package seed produces synthetic patients for demos and local load.
package seed

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ehr/registry/internal/domain/records"
)

var (
	givenNames = []string{
		"Ada", "Bruno", "Chiara", "Dmitri", "Elena", "Farid", "Grace", "Hiro",
		"Ines", "Jonas", "Keiko", "Luca", "Mara", "Nils", "Olga", "Pedro",
		"Quinn", "Rosa", "Samir", "Tess", "Umar", "Vera", "Wen", "Yara",
	}
	familyNames = []string{
		"Alvarez", "Berg", "Costa", "Dubois", "Eriksen", "Fischer", "Garcia",
		"Haddad", "Ivanova", "Jensen", "Kowalski", "Larsen", "Moreau", "Novak",
		"Okafor", "Petrov", "Rossi", "Silva", "Tanaka", "Weber",
	}
)

const maxAge = 95

// Generator produces deterministic synthetic registration inputs.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator seeded for reproducibility. If seed is 0 a
// time-based seed is chosen.
func New(seed uint64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.IntN(len(pool))]
}

// GeneratePatient produces one patient input.
func (g *Generator) GeneratePatient() records.NewPatient {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.patient()
}

func (g *Generator) patient() records.NewPatient {
	return records.NewPatient{
		Name:      g.pick(givenNames) + " " + g.pick(familyNames),
		Condition: string(records.Conditions[g.rng.IntN(len(records.Conditions))]),
		Age:       g.rng.IntN(maxAge + 1),
	}
}

// Generate produces n patient inputs; nil when n is not positive.
func (g *Generator) Generate(n int) []records.NewPatient {
	if n <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]records.NewPatient, n)
	for i := range out {
		out[i] = g.patient()
	}
	return out
}
