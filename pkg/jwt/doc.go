// Package jwt implements compact HMAC-SHA256 JSON Web Tokens with a
// deliberately small surface: one Service per signing key, Generate/Parse for
// the token round trip, and UnverifiedHeader for reading a key hint out of an
// inbound token before any verification has happened.
//
// The multi-issuer flow this package is built for works in two steps: decode
// the header with UnverifiedHeader to learn who claims to have signed the
// token, look up that issuer's secret, then construct a Service with it and
// Parse. Nothing read from UnverifiedHeader may be trusted until Parse
// succeeds.
//
//	header, _ := jwt.UnverifiedHeader(token)
//	secret := lookupSecret(header["aid"])
//	svc, _ := jwt.NewFromString(secret)
//
//	var claims jwt.StandardClaims
//	if err := svc.Parse(token, &claims); err != nil {
//		// reject
//	}
//
// Claims types embedding StandardClaims get expiry and not-before validation
// for free; custom claim fields are plain JSON tags.
package jwt
