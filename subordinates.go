package ugibdd

// Manageable returns the cached employees actor may edit.
func (s *EmployeeStore) Manageable(actor *Employee) []Employee {
	var out []Employee
	for _, e := range s.List() {
		if CanEditUser(actor, e) {
			out = append(out, e)
		}
	}
	return out
}

// Assignable returns the cached employees of category at or above floor,
// the candidates for taking a KUSP record.
func (s *EmployeeStore) Assignable(floor Category) []Employee {
	var out []Employee
	for _, e := range s.List() {
		if e.Category.AtLeast(floor) {
			out = append(out, e)
		}
	}
	return out
}
