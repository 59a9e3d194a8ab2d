package utils_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	raw, err := utils.NewAccessToken("s3cret", "u-42", utils.RoleCustomer, time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	c, err := utils.ParseAccessToken("s3cret", raw)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if c.UserID != "u-42" || c.Role != utils.RoleCustomer {
		t.Fatalf("claims %+v", c)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	good, _ := utils.NewAccessToken("s3cret", "u-42", utils.RoleOwner, time.Minute)
	expired, _ := utils.NewAccessToken("s3cret", "u-42", utils.RoleOwner, -time.Minute)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-42"}).SignedString([]byte("s3cret"))
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()}).SignedString([]byte("s3cret"))

	cases := map[string]struct{ secret, raw string }{
		"wrong secret": {"other", good},
		"expired":      {"s3cret", expired},
		"no exp":       {"s3cret", noExp},
		"no subject":   {"s3cret", noSub},
		"garbage":      {"s3cret", "not.a.token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := utils.ParseAccessToken(tc.secret, tc.raw); !errors.Is(err, utils.ErrInvalidToken) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestParseAccessTokenNumericSubject(t *testing.T) {
	raw, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 17, "role": "OWNER", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("k"))
	c, err := utils.ParseAccessToken("k", raw)
	if err != nil || c.UserID != "17" {
		t.Fatalf("got %+v, %v", c, err)
	}
}
