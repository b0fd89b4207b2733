// Package auth implements password hashing and the role-check matrix
// behind auth(user, project_slug) named in spec.md §4.1/§6 — login/session
// issuance itself (JWT signing, cookies) is the HTTP layer's job and stays
// out of scope (spec.md §1 Non-goals), but hashing credentials and deciding
// whether a role may perform an Action are core, testable behaviors.
package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
)

// HashPassword bcrypt-hashes a plaintext password for storage in
// models.User.PasswordHash. No third-party or ecosystem library in the
// example corpus covers password hashing; golang.org/x/crypto is the
// Go-team-maintained extension of the standard library, so bcrypt is used
// here rather than a hand-rolled KDF (see DESIGN.md).
func HashPassword(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errs.Invalidf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", errs.Internalf(err, "hashing password")
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches hash.
func VerifyPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// permissions is the closed role x Action matrix spec.md §4.1 describes:
// root can do anything; manager can add/update/delete/get within their
// projects; annotator may only get and push annotations (modeled as
// ActionUpdate against the annotation endpoints, ActionGet elsewhere).
var permissions = map[models.AuthStatus]map[models.Action]bool{
	models.AuthRoot: {
		models.ActionAdd: true, models.ActionUpdate: true, models.ActionDelete: true,
		models.ActionGet: true, models.ActionManageServer: true,
	},
	models.AuthManager: {
		models.ActionAdd: true, models.ActionUpdate: true, models.ActionDelete: true,
		models.ActionGet: true,
	},
	models.AuthAnnotator: {
		models.ActionGet: true, models.ActionUpdate: true,
	},
}

// Authorize reports whether status may perform action, returning Forbidden
// for a denied role and NotFound-shaped callers should map separately when
// status itself is absent (no grant exists).
func Authorize(status models.AuthStatus, action models.Action) error {
	if permissions[status][action] {
		return nil
	}
	return errs.Forbiddenf("role %q may not perform %q", status, action)
}
