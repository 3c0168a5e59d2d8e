// Package random provides crypto-backed random helpers.
package random

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Seq generates a random alphanumeric string of length n.
func Seq(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[num(len(alphabet))]
	}
	return string(b)
}

// num generates a random integer in [0, n). It panics if n <= 0.
func num(n int) int {
	r, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return int(r.Int64())
}

// Pick returns a random element of items, or the zero value when items is empty.
func Pick[T any](items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[num(len(items))]
}
