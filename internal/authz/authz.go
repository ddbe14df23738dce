// Package authz gates table access with a casbin RBAC-over-objects
// model: subjects are client identities supplied by a connection's AUTH
// line, objects are "<db>.<table>" strings (or "*" for every table),
// and actions are "read"/"write". If the model/policy files named in
// internal/config are absent, a default-permissive policy is written
// so a fresh install behaves openly until an operator locks it down.
package authz

import (
	"os"
	"path/filepath"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/ensodb/enso/internal/config"
	"github.com/ensodb/enso/internal/ensoerr"
)

// ErrUnauthorized marks a rejected authorization check. It is returned
// instead of reaching the engine at all.
var ErrUnauthorized = ensoerr.SchemaViolation("unauthorized")

const (
	ActionRead  = "read"
	ActionWrite = "write"

	defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && r.act == p.act
`
	defaultPolicy = "p, anonymous, *, read\np, anonymous, *, write\ng, anonymous, anonymous\n"
)

// Enforcer wraps a casbin enforcer with the subject/object/action shape
// described above.
type Enforcer struct {
	e *casbin.Enforcer
}

// Open loads (or bootstraps) the model and policy files named by
// internal/config and returns a ready Enforcer.
func Open() (*Enforcer, error) {
	if err := ensureDefaultFiles(); err != nil {
		return nil, err
	}

	m, err := model.NewModelFromString(mustRead(config.ACLModelFile()))
	if err != nil {
		return nil, ensoerr.Corrupt("parse acl model: %v", err)
	}
	e, err := casbin.NewEnforcer(m, config.ACLPolicyFile())
	if err != nil {
		return nil, ensoerr.Corrupt("load acl policy: %v", err)
	}
	return &Enforcer{e: e}, nil
}

// Authorize reports whether subject may perform action on object
// ("<db>.<table>"). A casbin evaluation error is treated as denial,
// never as an ambient success.
func (en *Enforcer) Authorize(subject, object, action string) error {
	ok, err := en.e.Enforce(subject, object, action)
	if err != nil {
		return ensoerr.Corrupt("evaluate acl policy: %v", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

func mustRead(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return defaultModel
	}
	return string(b)
}

// ensureDefaultFiles writes the default model/policy if either is
// missing, so a fresh $ENSO_CONFIG_DIR gets a usable ACL config on
// first run instead of failing to start.
func ensureDefaultFiles() error {
	for path, contents := range map[string]string{
		config.ACLModelFile():  defaultModel,
		config.ACLPolicyFile(): defaultPolicy,
	} {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return ensoerr.Io("mkdir acl config dir", err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			return ensoerr.Io("write default acl config", err)
		}
	}
	return nil
}
