package oauthflow

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// refreshSkew is how long before the recorded expiry a token is already
// treated as expired, so a refresh lands before the remote side rejects it.
const refreshSkew = 60 * time.Second

// TokenRecord is the result of any grant. ExpiresAt is absolute epoch
// seconds, derived from expires_in at acquisition time when present.
type TokenRecord struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Expired reports whether the token is at or past its expiry, less the
// refresh skew. Tokens without a recorded expiry never expire locally.
func (t TokenRecord) Expired(now time.Time) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return !now.Before(time.Unix(t.ExpiresAt, 0).Add(-refreshSkew))
}

// Refreshable reports whether the token is eligible for a silent refresh.
func (t TokenRecord) Refreshable() bool {
	return t.RefreshToken != ""
}

// recordFromToken converts an oauth2 token into a TokenRecord. If the grant
// response carried no expiry but the access token is a JWT, the expiry is
// recovered from its exp claim. Refresh tokens are retained only when the
// params ask for it.
func recordFromToken(tok *oauth2.Token, p Params) TokenRecord {
	rec := TokenRecord{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
	}

	if !tok.Expiry.IsZero() {
		rec.ExpiresAt = tok.Expiry.Unix()
	} else if exp, ok := jwtExpiry(tok.AccessToken); ok {
		rec.ExpiresAt = exp
	}

	if p.RetainRefreshToken {
		rec.RefreshToken = tok.RefreshToken
	}

	return rec
}

// jwtExpiry parses raw as an unverified JWT and returns its exp claim. The
// token is not validated here; only its advertised lifetime is of interest.
func jwtExpiry(raw string) (int64, bool) {
	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return 0, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, false
	}
	return exp.Unix(), true
}
