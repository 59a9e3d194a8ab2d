package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// NumberGenerator produces candidate reservation numbers.  Uniqueness is
// checked by the orchestrator.
type NumberGenerator interface {
	Next(now time.Time) string
}

// NumberFunc adapts a function to NumberGenerator.
type NumberFunc func(now time.Time) string

func (f NumberFunc) Next(now time.Time) string { return f(now) }

// RandomNumbers formats RES, the UTC timestamp to the second and four random
// digits, e.g. RES202401311830451234.
type RandomNumbers struct{}

func (RandomNumbers) Next(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	suffix := int64(1000)
	if err == nil {
		suffix += n.Int64()
	}
	return fmt.Sprintf("RES%s%04d", now.UTC().Format("20060102150405"), suffix)
}
