package roles

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Match tells which rule classified a role name.
type Match int

const (
	MatchExact Match = iota
	MatchAlias
	MatchSubstring
	MatchDefault
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchAlias:
		return "alias"
	case MatchSubstring:
		return "substring"
	default:
		return "default"
	}
}

var separatorRun = regexp.MustCompile(`[\s-]+`)

var aliases = map[string]RoleCode{
	"ADMIN":               SuperAdmin,
	"ADMINISTRATOR":       SuperAdmin,
	"SUPERADMIN":          SuperAdmin,
	"SUPER_ADMINISTRATOR": SuperAdmin,
	"SUPER_USER":          SuperAdmin,
	"SUPERUSER":           SuperAdmin,
	"ROOT":                SuperAdmin,
	"OWNER":               SuperAdmin,
	"MANAGER":             SalesManager,
	"SALESMANAGER":        SalesManager,
	"SALES_MGR":           SalesManager,
	"MGR":                 SalesManager,
	"SALESMAN":            SalesMan,
	"SALES":               SalesMan,
	"SALESPERSON":         SalesMan,
	"SALES_PERSON":        SalesMan,
	"SALES_REP":           SalesMan,
	"SALESREP":            SalesMan,
	"SELLER":              SalesMan,
}

// substringRules are checked in order; the first hit wins.
var substringRules = []struct {
	needles []string
	code    RoleCode
}{
	{needles: []string{"ADMIN", "SUPER"}, code: SuperAdmin},
	{needles: []string{"MANAGER"}, code: SalesManager},
	{needles: []string{"SALES", "MAN"}, code: SalesMan},
}

// Canonical trims, upper-cases and joins whitespace/hyphen runs with a single
// underscore.
func Canonical(name string) string {
	s := cases.Upper(language.Und).String(strings.TrimSpace(name))
	return separatorRun.ReplaceAllString(s, "_")
}

// Classify maps a free form role name onto a RoleCode. It is total and
// deterministic: exact code, alias table, substring priority, then SalesMan.
func Classify(name string) (RoleCode, Match) {
	canonical := Canonical(name)
	if code := RoleCode(canonical); code.Valid() {
		return code, MatchExact
	}
	if code, ok := aliases[canonical]; ok {
		return code, MatchAlias
	}
	if canonical != "" {
		for _, rule := range substringRules {
			for _, needle := range rule.needles {
				if strings.Contains(canonical, needle) {
					return rule.code, MatchSubstring
				}
			}
		}
	}
	return SalesMan, MatchDefault
}

// Normalizer wraps Classify with a diagnostic on the default path.
type Normalizer struct {
	Logger *slog.Logger
}

// Normalize returns the RoleCode for name. It never fails.
func (n Normalizer) Normalize(name string) RoleCode {
	code, match := Classify(name)
	if match == MatchDefault && n.Logger != nil {
		n.Logger.Warn("role name did not match any role code, using least privileged",
			slog.String("role_name", name),
			slog.String("role_code", code.String()),
		)
	}
	return code
}

var displayNames = map[RoleCode]string{
	SuperAdmin:   "Super Admin",
	SalesManager: "Sales Manager",
	SalesMan:     "Salesman",
}

// Denormalize picks the label to show for code: the first role whose
// canonical name is exactly the code, otherwise the fixed display name.
func Denormalize(code RoleCode, roles []Role) string {
	for _, role := range roles {
		if Canonical(role.Name) == string(code) {
			return role.Name
		}
	}
	if label, ok := displayNames[code]; ok {
		return label
	}
	return string(code)
}

// ParseRoleCode strictly parses API input into a RoleCode.
func ParseRoleCode(raw string) (RoleCode, error) {
	code := RoleCode(Canonical(raw))
	if !code.Valid() {
		return "", fmt.Errorf("roles: unknown role code %q: %w", raw, shared.ErrValidation)
	}
	return code, nil
}
