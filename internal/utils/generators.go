package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// PNRAlphabet leaves out 0, 1, I and O so references can be read aloud.
const PNRAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const PNRLength = 6

// GeneratePNR returns a random booking reference such as "K7QX2M".
func GeneratePNR() (string, error) {
	max := big.NewInt(int64(len(PNRAlphabet)))
	buf := make([]byte, PNRLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate pnr: %w", err)
		}
		buf[i] = PNRAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ValidPNR reports whether s has the shape GeneratePNR produces.
func ValidPNR(s string) bool {
	if len(s) != PNRLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(PNRAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}

// GenerateHoldToken identifies one reservation across its seats.
func GenerateHoldToken() string {
	return uuid.NewString()
}
