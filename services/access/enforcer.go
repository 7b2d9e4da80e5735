package access

import (
	"fmt"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("access.enforcer",
	fx.Provide(NewEnforcer),
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// defaultPolicy is the role matrix used when ACCESS_CONTROL.POLICY is unset.
var defaultPolicy = [][]string{
	{"admin", "*", "*"},
	{"client", "campaign", "create"},
	{"client", "campaign", "update"},
	{"client", "campaign", "submit"},
	{"client", "campaign", "cancel"},
	{"client", "campaign", "close"},
	{"client", "campaign", "read"},
	{"client", "application", "read"},
	{"client", "review", "read"},
	{"client", "payment", "create"},
	{"client", "payment", "read"},
	{"client", "billing", "quote"},
	{"reviewer", "campaign", "read"},
	{"reviewer", "application", "create"},
	{"reviewer", "application", "cancel"},
	{"reviewer", "application", "read"},
	{"reviewer", "verification", "submit"},
	{"reviewer", "verification", "read"},
	{"reviewer", "review", "submit"},
	{"reviewer", "review", "read"},
	{"reviewer", "point", "read"},
	{"reviewer", "withdrawal", "create"},
	{"reviewer", "withdrawal", "read"},
}

type Enforcer struct {
	e *casbin.Enforcer
}

type Params struct {
	fx.In

	Config *config.Config `optional:"true"`
}

func NewEnforcer(p Params) (*Enforcer, error) {
	if p.Config != nil && p.Config.AccessControl.Model != "" && p.Config.AccessControl.Policy != "" {
		e, err := casbin.NewEnforcer(p.Config.AccessControl.Model, p.Config.AccessControl.Policy)
		if err != nil {
			zap.L().Error("failed to load access control files", zap.Error(err))
			return nil, err
		}
		return &Enforcer{e: e}, nil
	}
	return NewDefaultEnforcer()
}

// NewDefaultEnforcer builds the enforcer from the embedded model and policy.
func NewDefaultEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := e.AddPolicies(defaultPolicy); err != nil {
		return nil, err
	}
	// system acts with operator rights
	if _, err := e.AddGroupingPolicy(string(RoleSystem), string(RoleAdmin)); err != nil {
		return nil, err
	}
	return &Enforcer{e: e}, nil
}

// Authorize checks whether the actor's role may perform act on obj.
func (e *Enforcer) Authorize(a Actor, obj, act string) error {
	if !a.Role.Valid() || a.ID == "" {
		return errutil.Unauthorized("missing or unknown actor", nil)
	}
	ok, err := e.e.Enforce(string(a.Role), obj, act)
	if err != nil {
		return errutil.Internal("access policy evaluation failed", err)
	}
	if !ok {
		return errutil.Forbidden(fmt.Sprintf("%s may not %s %s", a.Role, act, obj), nil)
	}
	return nil
}
