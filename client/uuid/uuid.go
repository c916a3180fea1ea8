// Package uuid generates short random identifiers for local media streams
// and tracks.
package uuid

import (
	"math/big"

	"github.com/google/uuid"
)

const alphabetBase62 = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// New returns a random UUID encoded in base 62, which keeps ids short and
// free of dashes. Subscription keys split on the last dash, so ids that end
// up in stream ids must not contain one.
func New() string {
	value := uuid.New()

	return encode(value[:], alphabetBase62)
}

// encode encodes data into the alphabet's base, least significant digit
// first.
func encode(data []byte, alphabet string) string {
	var (
		value big.Int
		zero  big.Int
		base  big.Int
		rem   big.Int
	)

	value.SetBytes(data)
	base.SetInt64(int64(len(alphabet)))

	result := make([]byte, 0, 22)

	for value.Cmp(&zero) != 0 {
		value.DivMod(&value, &base, &rem)
		result = append(result, alphabet[rem.Int64()])
	}

	return string(result)
}
