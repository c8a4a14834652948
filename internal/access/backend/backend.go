// Package backend exposes the capability predicates through a chain-style
// authorization protocol: the host asks every registered backend in turn,
// and this one only answers object-level questions about patients and
// clinical events. Everything else (authentication, model-level and group
// permissions) is deferred by returning the protocol's "not mine" value.
package backend

import (
	"context"

	"clinauth/internal/access"
)

// registryEntry binds a permission name to the kind it applies to and the
// predicate that decides it.
type registryEntry struct {
	kind  access.Kind
	check func(r *access.Ruleset, sub *access.Subject, obj access.Object) bool
}

// The registry is fixed: consumer apps cannot add object-level permissions
// at this layer.
var registry = map[string]registryEntry{
	access.PermAccessPatient: {
		kind: access.KindPatient,
		check: func(r *access.Ruleset, sub *access.Subject, obj access.Object) bool {
			p, ok := obj.(*access.Patient)
			return ok && r.CanAccessPatient(sub, p)
		},
	},
	access.PermSearchPatient: {
		kind: access.KindPatient,
		check: func(r *access.Ruleset, sub *access.Subject, obj access.Object) bool {
			p, ok := obj.(*access.Patient)
			return ok && r.CanSeePatientInSearch(sub, p)
		},
	},
	access.PermChangePersonalData: {
		kind: access.KindPatient,
		check: func(r *access.Ruleset, sub *access.Subject, obj access.Object) bool {
			p, ok := obj.(*access.Patient)
			return ok && r.CanChangePatientPersonalData(sub, p)
		},
	},
	access.PermDischargePatient: {
		kind: access.KindPatient,
		check: func(r *access.Ruleset, sub *access.Subject, obj access.Object) bool {
			p, ok := obj.(*access.Patient)
			return ok && r.CanChangePatientStatus(sub, p, access.StatusDischarged)
		},
	},
	access.PermEditEvent: {
		kind: access.KindEvent,
		check: func(r *access.Ruleset, sub *access.Subject, obj access.Object) bool {
			e, ok := obj.(*access.Event)
			return ok && r.CanEditEvent(sub, e)
		},
	},
	access.PermDeleteEvent: {
		kind: access.KindEvent,
		check: func(r *access.Ruleset, sub *access.Subject, obj access.Object) bool {
			e, ok := obj.(*access.Event)
			return ok && r.CanDeleteEvent(sub, e)
		},
	},
}

// Backend implements the object-permission side of the host's multi-backend
// protocol.
type Backend struct {
	rules *access.Ruleset
}

func New(rules *access.Ruleset) *Backend {
	return &Backend{rules: rules}
}

// Authenticate always defers: this backend never authenticates anyone.
func (b *Backend) Authenticate(ctx context.Context, credentials map[string]string) (*access.Subject, error) {
	return nil, nil
}

// HasPerm answers one permission question about one object. A nil object or
// an unknown permission name returns false, which the chain reads as "ask
// the next backend", not as a hard denial.
func (b *Backend) HasPerm(sub *access.Subject, permission string, obj access.Object) bool {
	if obj == nil {
		return false
	}
	entry, ok := registry[permission]
	if !ok {
		return false
	}
	if entry.kind != obj.Key().Kind {
		return false
	}
	return entry.check(b.rules, sub, obj)
}

// HasModulePerms always defers; model-level permissions belong to the
// default backend.
func (b *Backend) HasModulePerms(sub *access.Subject, module string) bool {
	return false
}

// UserPermissions evaluates every registered permission applicable to the
// object's kind and returns the names that currently hold. An object of an
// unknown kind simply has no applicable permissions.
func (b *Backend) UserPermissions(sub *access.Subject, obj access.Object) map[string]struct{} {
	perms := make(map[string]struct{})
	if obj == nil {
		return perms
	}
	kind := obj.Key().Kind
	for name, entry := range registry {
		if entry.kind != kind {
			continue
		}
		if entry.check(b.rules, sub, obj) {
			perms[name] = struct{}{}
		}
	}
	return perms
}

// GroupPermissions is always empty: group-level object permissions are
// intentionally unsupported here.
func (b *Backend) GroupPermissions(sub *access.Subject, obj access.Object) map[string]struct{} {
	return map[string]struct{}{}
}

// AllPermissions is UserPermissions; there is nothing else to merge.
func (b *Backend) AllPermissions(sub *access.Subject, obj access.Object) map[string]struct{} {
	return b.UserPermissions(sub, obj)
}
