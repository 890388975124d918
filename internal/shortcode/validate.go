package shortcode

import "math"

// Code length bounds accepted from clients
const (
	MinLength = 6
	MaxLength = 8
)

// IsValid reports whether code is 6 to 8 alphanumeric characters
func IsValid(code string) bool {
	return validCode(code, MinLength, MaxLength)
}

func validCode(code string, minLen, maxLen int) bool {
	if len(code) < minLen || len(code) > maxLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// Stats describes the size of the code space
type Stats struct {
	CharactersAvailable int `json:"charactersAvailable"`
	// PossibleCombinations maps code length to the number of distinct codes
	PossibleCombinations map[int]float64 `json:"possibleCombinations"`
}

// Stats reports the address space for every length the allocator can return
func (a *Allocator) Stats() Stats {
	base := float64(len(Alphabet))
	s := Stats{
		CharactersAvailable:  len(Alphabet),
		PossibleCombinations: make(map[int]float64, 3),
	}
	for l := a.length; l <= a.length+FallbackGrowth; l++ {
		s.PossibleCombinations[l] = math.Pow(base, float64(l))
	}
	return s
}
