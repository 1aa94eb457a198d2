package domain

import (
	"fmt"
	"strings"
)

// Category is the closed set of deal categories.
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryComputers   Category = "computers"
	CategoryPhones      Category = "phones"
	CategoryAudio       Category = "audio"
	CategoryGaming      Category = "gaming"
	CategoryCameras     Category = "cameras"
	CategoryHome        Category = "home"
	CategoryKitchen     Category = "kitchen"
	CategoryFurniture   Category = "furniture"
	CategoryGarden      Category = "garden"
	CategoryTools       Category = "tools"
	CategoryFashion     Category = "fashion"
	CategoryShoes       Category = "shoes"
	CategoryJewelry     Category = "jewelry"
	CategoryBeauty      Category = "beauty"
	CategoryHealth      Category = "health"
	CategorySports      Category = "sports"
	CategoryOutdoors    Category = "outdoors"
	CategoryToys        Category = "toys"
	CategoryBaby        Category = "baby"
	CategoryBooks       Category = "books"
	CategoryMusic       Category = "music"
	CategoryMovies      Category = "movies"
	CategoryAutomotive  Category = "automotive"
	CategoryPets        Category = "pets"
	CategoryOffice      Category = "office"
	CategoryGrocery     Category = "grocery"
	CategoryTravel      Category = "travel"
	CategoryOther       Category = "other"
)

// Categories is the enumeration in declaration order. The substring fallback
// of MapCategory walks it in this order, so earlier entries win ties.
var Categories = []Category{
	CategoryElectronics, CategoryComputers, CategoryPhones, CategoryAudio,
	CategoryGaming, CategoryCameras, CategoryHome, CategoryKitchen,
	CategoryFurniture, CategoryGarden, CategoryTools, CategoryFashion,
	CategoryShoes, CategoryJewelry, CategoryBeauty, CategoryHealth,
	CategorySports, CategoryOutdoors, CategoryToys, CategoryBaby,
	CategoryBooks, CategoryMusic, CategoryMovies, CategoryAutomotive,
	CategoryPets, CategoryOffice, CategoryGrocery, CategoryTravel,
	CategoryOther,
}

// categoryAliases maps marketplace category labels onto the enumeration.
// Order matters for the substring pass.
var categoryAliases = []struct {
	alias    string
	category Category
}{
	{"laptop", CategoryComputers},
	{"computer", CategoryComputers},
	{"tablet", CategoryComputers},
	{"cell_phone", CategoryPhones},
	{"smartphone", CategoryPhones},
	{"phone", CategoryPhones},
	{"headphone", CategoryAudio},
	{"speaker", CategoryAudio},
	{"video_game", CategoryGaming},
	{"console", CategoryGaming},
	{"camera", CategoryCameras},
	{"photo", CategoryCameras},
	{"appliance", CategoryHome},
	{"household", CategoryHome},
	{"patio", CategoryGarden},
	{"lawn", CategoryGarden},
	{"hardware", CategoryTools},
	{"clothing", CategoryFashion},
	{"apparel", CategoryFashion},
	{"accessories", CategoryFashion},
	{"watch", CategoryJewelry},
	{"cosmetic", CategoryBeauty},
	{"personal_care", CategoryBeauty},
	{"wellness", CategoryHealth},
	{"fitness", CategorySports},
	{"camping", CategoryOutdoors},
	{"game", CategoryToys},
	{"nursery", CategoryBaby},
	{"kindle", CategoryBooks},
	{"instrument", CategoryMusic},
	{"dvd", CategoryMovies},
	{"car", CategoryAutomotive},
	{"pet", CategoryPets},
	{"stationery", CategoryOffice},
	{"food", CategoryGrocery},
	{"luggage", CategoryTravel},
}

// normalizeCategory lower-cases s and folds separators to underscores.
func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("&", " ", ",", " ", "/", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), "_")
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// ParseCategory is the strict conversion used on caller input: only exact
// enum names (case-insensitive) are accepted.
func ParseCategory(s string) (Category, error) {
	c := Category(normalizeCategory(s))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// MapCategory maps an arbitrary marketplace label onto the enumeration. It
// tries an exact match (enum names, then plural-trimmed names, then aliases)
// before a substring pass over enum names and aliases in declaration order.
// Anything unrecognised maps to CategoryOther; it never fails.
func MapCategory(s string) Category {
	n := normalizeCategory(s)
	if n == "" {
		return CategoryOther
	}

	if c := Category(n); c.Valid() {
		return c
	}
	if c := Category(strings.TrimSuffix(n, "s")); c.Valid() {
		return c
	}
	for _, a := range categoryAliases {
		if n == a.alias || n == a.alias+"s" {
			return a.category
		}
	}

	for _, c := range Categories {
		if c == CategoryOther {
			continue
		}
		if strings.Contains(n, string(c)) {
			return c
		}
	}
	for _, a := range categoryAliases {
		if strings.Contains(n, a.alias) {
			return a.category
		}
	}
	return CategoryOther
}
