package entity

import "github.com/golang-jwt/jwt/v5"

// Claim is a (type, value) attribute attached to a user.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ClaimSet is the ordered collection of a user's claims. Duplicates are
// kept as stored.
type ClaimSet struct {
	claims []Claim
}

// NewClaimSet returns an empty set.
func NewClaimSet() *ClaimSet {
	return &ClaimSet{claims: []Claim{}}
}

func (s *ClaimSet) Add(c Claim) {
	s.claims = append(s.claims, c)
}

// All returns a copy of the claims in insertion order.
func (s *ClaimSet) All() []Claim {
	out := make([]Claim, len(s.claims))
	copy(out, s.claims)
	return out
}

func (s *ClaimSet) Len() int { return len(s.claims) }

// Has reports whether an exact (type, value) pair is present.
func (s *ClaimSet) Has(typ, value string) bool {
	for _, c := range s.claims {
		if c.Type == typ && c.Value == value {
			return true
		}
	}
	return false
}

// FindFirst returns the first claim of the given type.
func (s *ClaimSet) FindFirst(typ string) (Claim, bool) {
	for _, c := range s.claims {
		if c.Type == typ {
			return c, true
		}
	}
	return Claim{}, false
}

// MapClaims renders the set as JWT claims with sub set to subject.
// A type seen once maps to a string, a repeated type to a []string.
func (s *ClaimSet) MapClaims(subject string) jwt.MapClaims {
	out := jwt.MapClaims{"sub": subject}
	grouped := map[string][]string{}
	var order []string
	for _, c := range s.claims {
		if _, seen := grouped[c.Type]; !seen {
			order = append(order, c.Type)
		}
		grouped[c.Type] = append(grouped[c.Type], c.Value)
	}
	for _, typ := range order {
		vals := grouped[typ]
		if len(vals) == 1 {
			out[typ] = vals[0]
			continue
		}
		out[typ] = vals
	}
	return out
}
