package timestamp

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestIssuerProperties uses property-based testing to verify ordering invariants.
// These properties should ALWAYS hold for any partitioning configuration.
func TestIssuerProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	// Property 1: every issued value stays in the issuer's residue class
	properties.Property("values stay in residue class", prop.ForAll(
		func(stride uint8, startOffset uint8, count uint8) bool {
			k := uint64(stride%8) + 2
			start := uint64(startOffset)%k + 1

			iss, err := NewIssuer(IssuerConfig{ServerID: 1, StartValue: start, Stride: k})
			if err != nil {
				return false
			}

			for range int(count) + 1 {
				v, err := iss.Next()
				if err != nil {
					return false
				}
				if v%k != start%k {
					return false
				}
			}
			return true
		},
		gen.UInt8(),
		gen.UInt8(),
		gen.UInt8(),
	))

	// Property 2: two issuers on disjoint residue classes never collide,
	// and merging their outputs sorts into strictly increasing order
	properties.Property("disjoint issuers never collide", prop.ForAll(
		func(countA uint8, countB uint8) bool {
			a, err := NewIssuer(IssuerConfig{ServerID: 1, StartValue: 1, Stride: 2})
			if err != nil {
				return false
			}
			b, err := NewIssuer(IssuerConfig{ServerID: 2, StartValue: 2, Stride: 2})
			if err != nil {
				return false
			}

			seen := make(map[uint64]bool)
			for range int(countA) + 1 {
				v, err := a.Next()
				if err != nil || seen[v] {
					return false
				}
				seen[v] = true
			}
			for range int(countB) + 1 {
				v, err := b.Next()
				if err != nil || seen[v] {
					return false
				}
				seen[v] = true
			}
			return true
		},
		gen.UInt8(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
