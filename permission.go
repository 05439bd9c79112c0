package ugibdd

// Entity is a kind of record the permission matrix knows about.
type Entity string

const (
	EntityEmployee  Entity = "employee"
	EntityKusp      Entity = "kusp"
	EntityProtocol  Entity = "protocol"
	EntityTsu       Entity = "tsu"
	EntityActionLog Entity = "action_log"
)

// Action is an operation guarded by the permission matrix.
type Action string

const (
	ActionManage   Action = "manage"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
	ActionExport   Action = "export"
	ActionComplete Action = "complete"
	ActionView     Action = "view"
	ActionPurge    Action = "purge"
)

// rule grants an action to
// - any: these categories, unconditionally
// - shielded: these categories, unless the target is an Администратор
// - owner: the target's owner, whatever the category
type rule struct {
	any      []Category
	shielded []Category
	owner    bool
}

var (
	everyone    = []Category{CategoryMS, CategoryRS, CategoryVRS, CategoryAdmin}
	rsAndAbove  = []Category{CategoryRS, CategoryVRS, CategoryAdmin}
	vrsAndAbove = []Category{CategoryVRS, CategoryAdmin}
	adminOnly   = []Category{CategoryAdmin}
)

// matrix is the single source of truth for who may do what.
// Owner rules for KUSP compare the record's creator row id with the actor's id.
// Owner rules for protocols and TSU orders compare the creator's auth subject id.
var matrix = map[Entity]map[Action]rule{
	EntityEmployee: {
		ActionManage: {any: vrsAndAbove},
		ActionEdit:   {any: adminOnly, shielded: []Category{CategoryVRS}, owner: true},
		ActionDelete: {any: adminOnly, shielded: []Category{CategoryVRS}},
	},
	EntityKusp: {
		ActionEdit:   {any: rsAndAbove, owner: true},
		ActionDelete: {any: vrsAndAbove},
	},
	EntityProtocol: {
		ActionEdit:   {any: rsAndAbove, owner: true},
		ActionDelete: {any: vrsAndAbove},
		ActionExport: {any: everyone},
	},
	EntityTsu: {
		ActionEdit:     {any: rsAndAbove, owner: true},
		ActionDelete:   {any: vrsAndAbove, owner: true},
		ActionComplete: {any: everyone},
	},
	EntityActionLog: {
		ActionView:  {any: vrsAndAbove},
		ActionPurge: {any: adminOnly},
	},
}

// Actions lists the actions the matrix defines for entity.
func Actions(entity Entity) []Action {
	var out []Action
	for _, a := range []Action{ActionManage, ActionEdit, ActionDelete, ActionExport, ActionComplete, ActionView, ActionPurge} {
		if _, ok := matrix[entity][a]; ok {
			out = append(out, a)
		}
	}
	return out
}

func contains(list []Category, c Category) bool {
	for _, item := range list {
		if item == c {
			return true
		}
	}
	return false
}
