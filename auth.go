package chatsync

import "github.com/golang-jwt/jwt/v5"

// subjectFromToken returns the "sub" claim of a JWT without verifying it.
// The server checks the token; this only tells us which messages are ours.
func subjectFromToken(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
