package webcash

import "math/bits"

// ApparentDifficulty returns the number of leading zero bits of the hash.
func ApparentDifficulty(hash [32]byte) uint {
	var d uint
	for _, c := range hash {
		if c == 0 {
			d += 8
			continue
		}
		d += uint(bits.LeadingZeros8(c))
		break
	}
	return d
}

// CheckProofOfWork reports whether the hash has at least difficulty leading
// zero bits.
func CheckProofOfWork(hash [32]byte, difficulty uint) bool {
	i := 0
	for ; difficulty >= 8; difficulty -= 8 {
		if hash[i] != 0 {
			return false
		}
		i++
	}
	if difficulty == 0 {
		return true
	}
	return hash[i]>>(8-difficulty) == 0
}
