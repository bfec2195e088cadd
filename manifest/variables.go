// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// variableNamePattern restricts variable names to what can survive a
// round trip through an environment variable.
var variableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// VariablePrefix is the environment prefix the shim reads overrides
// from: the variable "db_url" is overridden by BOLLARD_VARIABLE_DB_URL.
const VariablePrefix = "BOLLARD_VARIABLE_"

// ResolveVariables produces the final variable map for an
// application: declaration defaults, overridden by values from lookup
// (normally os.LookupEnv). A required variable with neither a default
// nor an override is an error, reported for all such variables at
// once.
func ResolveVariables(declarations map[string]Variable, lookup func(string) (string, bool)) (map[string]string, error) {
	resolved := make(map[string]string, len(declarations))
	var missing []string

	for name, declaration := range declarations {
		if !variableNamePattern.MatchString(name) {
			return nil, fmt.Errorf("variable name %q is not a valid identifier", name)
		}

		value, found := lookup(VariablePrefix + strings.ToUpper(name))
		switch {
		case found:
			resolved[name] = value
		case declaration.Default != "" || !declaration.Required:
			resolved[name] = declaration.Default
		default:
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("required variables have no value: %s", strings.Join(missing, ", "))
	}
	return resolved, nil
}
