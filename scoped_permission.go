package ugibdd

// Resource is a record the matrix can reason about.
type Resource interface {
	Entity() Entity
	// OwnedBy reports whether actor created (or, for employees, is) the record.
	OwnedBy(actor *Employee) bool
}

// protected is implemented by resources that shielded rules never cover.
type protected interface {
	Protected() bool
}

func (e Employee) Entity() Entity { return EntityEmployee }

// OwnedBy is true when actor is the employee itself.
func (e Employee) OwnedBy(actor *Employee) bool {
	return actor != nil && actor.ID != 0 && actor.ID == e.ID
}

// Protected is true for administrators.
func (e Employee) Protected() bool { return e.Category == CategoryAdmin }

func (k KuspRecord) Entity() Entity { return EntityKusp }

func (k KuspRecord) OwnedBy(actor *Employee) bool {
	return actor != nil && actor.ID != 0 && k.CreatedByID == actor.ID
}

func (p ProtocolRecord) Entity() Entity { return EntityProtocol }

func (p ProtocolRecord) OwnedBy(actor *Employee) bool {
	return actor != nil && actor.AuthUserID != "" && p.CreatedByID == actor.AuthUserID
}

func (o TsuOrder) Entity() Entity { return EntityTsu }

func (o TsuOrder) OwnedBy(actor *Employee) bool {
	return actor != nil && actor.AuthUserID != "" && o.CreatedByID == actor.AuthUserID
}
