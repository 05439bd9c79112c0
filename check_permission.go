package ugibdd

import "fmt"

// Allowed reports whether actor may perform action on target. target may be nil
// for entity-wide actions. The result depends on nothing but the arguments.
func Allowed(actor *Employee, entity Entity, action Action, target Resource) bool {
	if actor == nil || !actor.Category.Valid() {
		return false
	}
	if target != nil && target.Entity() != entity {
		return false
	}
	r, ok := matrix[entity][action]
	if !ok {
		return false
	}

	owned := target != nil && target.OwnedBy(actor)

	// Nobody deletes their own account
	if entity == EntityEmployee && action == ActionDelete && owned {
		return false
	}

	if contains(r.any, actor.Category) {
		return true
	}
	if contains(r.shielded, actor.Category) {
		if p, ok := target.(protected); !ok || !p.Protected() {
			return true
		}
	}
	return r.owner && owned
}

// Authorize is Allowed returning ErrPermissionDenied instead of false.
func Authorize(actor *Employee, entity Entity, action Action, target Resource) error {
	if Allowed(actor, entity, action, target) {
		return nil
	}
	return fmt.Errorf("%w: %s %s", ErrPermissionDenied, action, entity)
}

// CanManageUsers reports whether actor may open the admin panel.
func CanManageUsers(actor *Employee) bool {
	return Allowed(actor, EntityEmployee, ActionManage, nil)
}

// CanEditUser reports whether actor may edit target.
func CanEditUser(actor *Employee, target Employee) bool {
	return Allowed(actor, EntityEmployee, ActionEdit, target)
}

// CanDeleteUser reports whether actor may delete target. Always false for self.
func CanDeleteUser(actor *Employee, target Employee) bool {
	return Allowed(actor, EntityEmployee, ActionDelete, target)
}

// CanEditKusp reports whether actor may edit record.
func CanEditKusp(actor *Employee, record KuspRecord) bool {
	return Allowed(actor, EntityKusp, ActionEdit, record)
}

// CanDeleteKusp reports whether actor may delete KUSP records.
func CanDeleteKusp(actor *Employee) bool {
	return Allowed(actor, EntityKusp, ActionDelete, nil)
}

// CanEditProtocol reports whether actor may edit record.
func CanEditProtocol(actor *Employee, record ProtocolRecord) bool {
	return Allowed(actor, EntityProtocol, ActionEdit, record)
}

// CanDeleteProtocol reports whether actor may delete protocols.
func CanDeleteProtocol(actor *Employee) bool {
	return Allowed(actor, EntityProtocol, ActionDelete, nil)
}

// CanExportProtocol reports whether actor may export protocols.
func CanExportProtocol(actor *Employee) bool {
	return Allowed(actor, EntityProtocol, ActionExport, nil)
}

// CanEditTSU reports whether actor may edit order.
func CanEditTSU(actor *Employee, order TsuOrder) bool {
	return Allowed(actor, EntityTsu, ActionEdit, order)
}

// CanDeleteTSU reports whether actor may delete order.
func CanDeleteTSU(actor *Employee, order TsuOrder) bool {
	return Allowed(actor, EntityTsu, ActionDelete, order)
}

// CanCompleteTSU reports whether actor may complete or reopen orders.
func CanCompleteTSU(actor *Employee) bool {
	return Allowed(actor, EntityTsu, ActionComplete, nil)
}

// CanViewLogs reports whether actor may read the action log.
func CanViewLogs(actor *Employee) bool {
	return Allowed(actor, EntityActionLog, ActionView, nil)
}

// CanPurgeLogs reports whether actor may trim or purge the action log.
func CanPurgeLogs(actor *Employee) bool {
	return Allowed(actor, EntityActionLog, ActionPurge, nil)
}
