package ugibdd_test

import (
	"testing"

	"github.com/bohemiyan/ugibdd"
	"github.com/stretchr/testify/assert"
)

func actor(id int64, c ugibdd.Category) *ugibdd.Employee {
	return &ugibdd.Employee{ID: id, AuthUserID: "auth-" + string(rune('a'+id)), Nickname: "user", Category: c}
}

func TestEmployeePermissions(t *testing.T) {
	ms := actor(1, ugibdd.CategoryMS)
	rs := actor(2, ugibdd.CategoryRS)
	vrs := actor(3, ugibdd.CategoryVRS)
	admin := actor(4, ugibdd.CategoryAdmin)
	otherAdmin := *actor(5, ugibdd.CategoryAdmin)
	plain := *actor(6, ugibdd.CategoryRS)

	tests := []struct {
		name   string
		got    bool
		expect bool
	}{
		{"ms cannot manage", ugibdd.CanManageUsers(ms), false},
		{"rs cannot manage", ugibdd.CanManageUsers(rs), false},
		{"vrs manages", ugibdd.CanManageUsers(vrs), true},
		{"admin manages", ugibdd.CanManageUsers(admin), true},
		{"ms edits self", ugibdd.CanEditUser(ms, *ms), true},
		{"ms cannot edit others", ugibdd.CanEditUser(ms, plain), false},
		{"vrs edits rs", ugibdd.CanEditUser(vrs, plain), true},
		{"vrs cannot edit admin", ugibdd.CanEditUser(vrs, otherAdmin), false},
		{"admin edits admin", ugibdd.CanEditUser(admin, otherAdmin), true},
		{"vrs deletes rs", ugibdd.CanDeleteUser(vrs, plain), true},
		{"vrs cannot delete admin", ugibdd.CanDeleteUser(vrs, otherAdmin), false},
		{"admin deletes admin", ugibdd.CanDeleteUser(admin, otherAdmin), true},
		{"admin cannot delete self", ugibdd.CanDeleteUser(admin, *admin), false},
		{"rs cannot delete", ugibdd.CanDeleteUser(rs, plain), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, tt.got, tt.name)
	}
}

func TestRecordPermissions(t *testing.T) {
	ms := actor(1, ugibdd.CategoryMS)
	rs := actor(2, ugibdd.CategoryRS)
	vrs := actor(3, ugibdd.CategoryVRS)
	admin := actor(4, ugibdd.CategoryAdmin)

	ownKusp := ugibdd.KuspRecord{CreatedByID: ms.ID}
	foreignKusp := ugibdd.KuspRecord{CreatedByID: 99}
	ownProtocol := ugibdd.ProtocolRecord{CreatedByID: ms.AuthUserID}
	foreignProtocol := ugibdd.ProtocolRecord{CreatedByID: "someone"}
	ownOrder := ugibdd.TsuOrder{CreatedByID: ms.AuthUserID}
	foreignOrder := ugibdd.TsuOrder{CreatedByID: "someone"}

	assert.True(t, ugibdd.CanEditKusp(ms, ownKusp))
	assert.False(t, ugibdd.CanEditKusp(ms, foreignKusp))
	assert.True(t, ugibdd.CanEditKusp(rs, foreignKusp))
	assert.False(t, ugibdd.CanDeleteKusp(rs))
	assert.True(t, ugibdd.CanDeleteKusp(vrs))

	assert.True(t, ugibdd.CanEditProtocol(ms, ownProtocol))
	assert.False(t, ugibdd.CanEditProtocol(ms, foreignProtocol))
	assert.True(t, ugibdd.CanEditProtocol(rs, foreignProtocol))
	assert.False(t, ugibdd.CanDeleteProtocol(rs))
	assert.True(t, ugibdd.CanDeleteProtocol(admin))
	assert.True(t, ugibdd.CanExportProtocol(ms))

	assert.True(t, ugibdd.CanEditTSU(ms, ownOrder))
	assert.False(t, ugibdd.CanEditTSU(ms, foreignOrder))
	assert.True(t, ugibdd.CanDeleteTSU(ms, ownOrder))
	assert.False(t, ugibdd.CanDeleteTSU(rs, foreignOrder))
	assert.True(t, ugibdd.CanDeleteTSU(vrs, foreignOrder))
	assert.True(t, ugibdd.CanCompleteTSU(ms))

	assert.False(t, ugibdd.CanViewLogs(rs))
	assert.True(t, ugibdd.CanViewLogs(vrs))
	assert.False(t, ugibdd.CanPurgeLogs(vrs))
	assert.True(t, ugibdd.CanPurgeLogs(admin))
}

func TestNobodyElseGetsAnything(t *testing.T) {
	guest := ugibdd.GuestIdentity()
	unknown := &ugibdd.Employee{ID: 7, Category: "Стажер"}
	for _, a := range []*ugibdd.Employee{nil, &guest, unknown} {
		assert.False(t, ugibdd.CanExportProtocol(a))
		assert.False(t, ugibdd.CanCompleteTSU(a))
		assert.False(t, ugibdd.CanEditKusp(a, ugibdd.KuspRecord{}))
		assert.ErrorIs(t, ugibdd.Authorize(a, ugibdd.EntityTsu, ugibdd.ActionComplete, nil), ugibdd.ErrPermissionDenied)
	}
}

func TestAllowedRejectsMismatchedTarget(t *testing.T) {
	admin := actor(4, ugibdd.CategoryAdmin)
	assert.False(t, ugibdd.Allowed(admin, ugibdd.EntityKusp, ugibdd.ActionEdit, ugibdd.TsuOrder{}))
	assert.False(t, ugibdd.Allowed(admin, ugibdd.EntityKusp, ugibdd.ActionPurge, nil))
}

func TestCategories(t *testing.T) {
	assert.True(t, ugibdd.CategoryVRS.AtLeast(ugibdd.CategoryRS))
	assert.False(t, ugibdd.CategoryMS.AtLeast(ugibdd.CategoryRS))
	assert.False(t, ugibdd.Category("").AtLeast(ugibdd.Category("")))

	c, err := ugibdd.ParseCategory("ВРС")
	assert.NoError(t, err)
	assert.Equal(t, ugibdd.CategoryVRS, c)
	_, err = ugibdd.ParseCategory("vrs")
	assert.ErrorIs(t, err, ugibdd.ErrInvalidInput)
}

func TestDecideBulk(t *testing.T) {
	vrs := actor(3, ugibdd.CategoryVRS)
	var checks []ugibdd.BulkCheck
	for i := 0; i < 50; i++ {
		checks = append(checks,
			ugibdd.BulkCheck{Entity: ugibdd.EntityKusp, Action: ugibdd.ActionDelete},
			ugibdd.BulkCheck{Entity: ugibdd.EntityActionLog, Action: ugibdd.ActionPurge},
		)
	}
	results := ugibdd.DecideBulk(vrs, checks)
	assert.Len(t, results, len(checks))
	for i, r := range results {
		assert.Equal(t, checks[i], r.BulkCheck)
		assert.Equal(t, r.Entity == ugibdd.EntityKusp, r.Allowed)
	}
	assert.Empty(t, ugibdd.DecideBulk(vrs, nil))
}

func TestSelfRulesHoldForEveryCategory(t *testing.T) {
	for i, c := range []ugibdd.Category{ugibdd.CategoryMS, ugibdd.CategoryRS, ugibdd.CategoryVRS, ugibdd.CategoryAdmin} {
		t.Run(string(c), func(t *testing.T) {
			a := actor(int64(i+1), c)
			assert.False(t, ugibdd.CanDeleteUser(a, *a))
			assert.True(t, ugibdd.CanEditUser(a, *a))
		})
	}
}

func TestPredicatesArePure(t *testing.T) {
	other := ugibdd.Employee{ID: 9, AuthUserID: "auth-other", Category: ugibdd.CategoryMS}
	kusp := ugibdd.KuspRecord{ID: 1, CreatedByID: 9}
	protocol := ugibdd.ProtocolRecord{ID: 1, CreatedByID: "auth-other"}
	order := ugibdd.TsuOrder{ID: 1, CreatedByID: "auth-other"}

	for i, c := range []ugibdd.Category{"", ugibdd.CategoryMS, ugibdd.CategoryRS, ugibdd.CategoryVRS, ugibdd.CategoryAdmin} {
		a := actor(int64(i+1), c)
		before := *a
		predicates := map[string]func() bool{
			"manage users":    func() bool { return ugibdd.CanManageUsers(a) },
			"edit user":       func() bool { return ugibdd.CanEditUser(a, other) },
			"delete user":     func() bool { return ugibdd.CanDeleteUser(a, other) },
			"edit kusp":       func() bool { return ugibdd.CanEditKusp(a, kusp) },
			"delete kusp":     func() bool { return ugibdd.CanDeleteKusp(a) },
			"edit protocol":   func() bool { return ugibdd.CanEditProtocol(a, protocol) },
			"delete protocol": func() bool { return ugibdd.CanDeleteProtocol(a) },
			"export protocol": func() bool { return ugibdd.CanExportProtocol(a) },
			"edit tsu":        func() bool { return ugibdd.CanEditTSU(a, order) },
			"delete tsu":      func() bool { return ugibdd.CanDeleteTSU(a, order) },
			"complete tsu":    func() bool { return ugibdd.CanCompleteTSU(a) },
			"view logs":       func() bool { return ugibdd.CanViewLogs(a) },
			"purge logs":      func() bool { return ugibdd.CanPurgeLogs(a) },
		}
		for name, p := range predicates {
			assert.Equal(t, p(), p(), "%s for %q", name, c)
		}
		assert.Equal(t, before, *a, "actor %q was modified", c)
	}
	assert.Equal(t, ugibdd.Employee{ID: 9, AuthUserID: "auth-other", Category: ugibdd.CategoryMS}, other)
}
