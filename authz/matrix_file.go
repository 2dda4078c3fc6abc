package authz

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a policy file cannot be turned into a matrix
var ErrInvalidPolicy = errors.New("invalid policy")

// policyFile is the on-disk shape of additional resource policies:
//
//	resources:
//	  instrument:
//	    read:   {minimum: READ_ONLY}
//	    write:  {minimum: POWER_USER}
//	    delete: {roles: [ADMIN]}
type policyFile struct {
	Resources map[string]map[string]requirementEntry `yaml:"resources"`
}

type requirementEntry struct {
	Roles   []string `yaml:"roles"`
	Minimum string   `yaml:"minimum"`
}

// LoadMatrix reads additional resource policies and merges them with the
// built-in ones. Built-in resources cannot be redefined.
func LoadMatrix(r io.Reader) (*Matrix, error) {
	var file policyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	policies := builtinPolicies()
	for resource, actions := range file.Resources {
		if resource == "" {
			return nil, fmt.Errorf("%w: empty resource name", ErrInvalidPolicy)
		}
		if _, builtin := policies[resource]; builtin {
			return nil, fmt.Errorf("%w: resource %q is built in and cannot be redefined", ErrInvalidPolicy, resource)
		}
		policy := make(Policy, len(actions))
		for action, entry := range actions {
			req, err := entry.requirement()
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidPolicy, resource, action, err)
			}
			policy[Action(action)] = req
		}
		policies[resource] = policy
	}

	return NewMatrix(policies), nil
}

// LoadMatrixFile loads policies from path. An empty path yields the default matrix.
func LoadMatrixFile(path string) (*Matrix, error) {
	if path == "" {
		return DefaultMatrix(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()
	return LoadMatrix(f)
}

func (e requirementEntry) requirement() (Requirement, error) {
	switch {
	case len(e.Roles) > 0 && e.Minimum != "":
		return nil, errors.New("set either roles or minimum, not both")
	case len(e.Roles) > 0:
		roles := make([]Role, 0, len(e.Roles))
		for _, raw := range e.Roles {
			role, err := ParseRole(raw)
			if err != nil {
				return nil, err
			}
			roles = append(roles, role)
		}
		return NewExactRoles(roles...), nil
	case e.Minimum != "":
		role, err := ParseRole(e.Minimum)
		if err != nil {
			return nil, err
		}
		return MinimumRole{Role: role}, nil
	default:
		return nil, errors.New("requirement is empty")
	}
}
