package ugibdd

import "sort"

// Departments returns the distinct department names of the cached employees.
func (s *EmployeeStore) Departments() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range s.List() {
		if e.Department == "" || seen[e.Department] {
			continue
		}
		seen[e.Department] = true
		out = append(out, e.Department)
	}
	sort.Strings(out)
	return out
}

// DepartmentMembers returns the cached employees of one department.
func (s *EmployeeStore) DepartmentMembers(department string) []Employee {
	var out []Employee
	for _, e := range s.List() {
		if e.Department == department {
			out = append(out, e)
		}
	}
	return out
}
