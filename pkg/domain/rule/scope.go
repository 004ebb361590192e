package rule

import (
	"fmt"
	"strings"

	"github.com/depsentry/api/pkg/domain/shared"
)

// ScopeGlobal is the scope of rules applying to every project. Project
// scopes are "project:<id>". A project's own rules, when any exist, fully
// replace the global set.
const ScopeGlobal = "global"

const projectScopePrefix = "project:"

// Scope is the persisted scope string of a rule.
type Scope string

// GlobalScope returns the global scope.
func GlobalScope() Scope {
	return Scope(ScopeGlobal)
}

// ProjectScope returns the scope string for a project.
func ProjectScope(projectID shared.ID) Scope {
	return Scope(projectScopePrefix + projectID.String())
}

// IsGlobal reports whether the scope is the global scope.
func (s Scope) IsGlobal() bool {
	return string(s) == ScopeGlobal
}

// ProjectID extracts the project id from a project scope. Returns
// shared.ErrValidation for global or malformed scopes.
func (s Scope) ProjectID() (shared.ID, error) {
	raw, ok := strings.CutPrefix(string(s), projectScopePrefix)
	if !ok {
		return shared.ID{}, shared.NewDomainError("VALIDATION",
			fmt.Sprintf("scope %q is not a project scope", s), shared.ErrValidation)
	}
	return shared.IDFromString(raw)
}

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}
