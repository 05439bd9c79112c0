package ugibdd

// Category is an employee rank tier. It is the only input the permission matrix
// looks at on the actor side.
type Category string

const (
	CategoryMS    Category = "МС"
	CategoryRS    Category = "РС"
	CategoryVRS   Category = "ВРС"
	CategoryAdmin Category = "Администратор"
)

// Categories lists every category from the lowest tier to the highest.
var Categories = []Category{CategoryMS, CategoryRS, CategoryVRS, CategoryAdmin}

// Rank returns the tier weight of the category, 0 for an unknown value.
func (c Category) Rank() int {
	switch c {
	case CategoryAdmin:
		return 100
	case CategoryVRS:
		return 80
	case CategoryRS:
		return 50
	case CategoryMS:
		return 20
	}
	return 0
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c.Rank() > 0
}

// AtLeast reports whether c ranks at or above other.
func (c Category) AtLeast(other Category) bool {
	return c.Valid() && c.Rank() >= other.Rank()
}

// ParseCategory validates a raw category value.
func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if !c.Valid() {
		return "", invalid("category", "неизвестная категория")
	}
	return c, nil
}
