// Package middleware holds transport-level middleware shared by every
// route: request ids and subject extraction. Extraction is not
// authentication policy; an absent or invalid token just yields an
// unauthenticated subject and the guards make the deny decision.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"clinauth/internal/access"
	"clinauth/pkg/domain"
)

type contextKeySubject struct{}

// SubjectClaims are the token claims the platform issues for clinicians.
type SubjectClaims struct {
	jwt.RegisteredClaims
	Profession      string `json:"profession,omitempty"`
	HospitalContext string `json:"hospital_context,omitempty"`
}

// WithSubject stores a subject in the context; exported for handler tests.
func WithSubject(ctx context.Context, sub *access.Subject) context.Context {
	return context.WithValue(ctx, contextKeySubject{}, sub)
}

// SubjectFrom returns the authenticated subject, or nil when the request
// carried no usable token.
func SubjectFrom(ctx context.Context) *access.Subject {
	sub, _ := ctx.Value(contextKeySubject{}).(*access.Subject)
	return sub
}

// Subject parses the Bearer token into an access.Subject. Unknown
// professions degrade to Unset rather than rejecting the request: a subject
// with a broken profile keeps the baseline grants and loses the elevated
// ones.
func Subject(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims := &SubjectClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return signingKey, nil
			})
			if err != nil || !parsed.Valid {
				logger.WarnContext(r.Context(), "invalid bearer token", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			id, err := domain.ParseSubjectID(claims.Subject)
			if err != nil {
				logger.WarnContext(r.Context(), "token subject is not a valid id", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			profession, err := access.ParseProfession(claims.Profession)
			if err != nil {
				profession = access.ProfessionUnset
			}
			sub := &access.Subject{
				ID:              id,
				Authenticated:   true,
				Profession:      profession,
				HospitalContext: claims.HospitalContext,
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), sub)))
		})
	}
}
