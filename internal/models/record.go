// Package models defines the records persisted by studydesk: category file records,
// tutor profiles and user accounts.
package models

import "time"

// Category identifies one of the file tables.
type Category string

const (
	CategoryMaterials   Category = "materials"
	CategoryLessonPlans Category = "lessonPlans"
	CategoryResources   Category = "resources"
)

// Categories lists every file category in display order.
var Categories = []Category{CategoryMaterials, CategoryLessonPlans, CategoryResources}

// categoryAliases maps the names clients send (form values, URL segments) to a category.
var categoryAliases = map[string]Category{
	"materials":    CategoryMaterials,
	"material":     CategoryMaterials,
	"textbook":     CategoryMaterials,
	"lesson_plans": CategoryLessonPlans,
	"lessonPlans":  CategoryLessonPlans,
	"lessonPlan":   CategoryLessonPlans,
	"lesson-plans": CategoryLessonPlans,
	"resources":    CategoryResources,
	"resource":     CategoryResources,
}

// ParseCategory resolves a client-supplied category name.
func ParseCategory(name string) (Category, bool) {
	c, ok := categoryAliases[name]
	return c, ok
}

// IDPrefix is the prefix of record IDs issued in this category.
func (c Category) IDPrefix() string {
	switch c {
	case CategoryMaterials:
		return "mat"
	case CategoryLessonPlans:
		return "lp"
	case CategoryResources:
		return "res"
	}
	return "rec"
}

// TableName is the base name of the table backing this category.
func (c Category) TableName() string {
	if c == CategoryLessonPlans {
		return "lesson-plans"
	}
	return string(c)
}

// FileRecord is the metadata entry for an uploaded file in one category.
type FileRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Name       string    `json:"name"`
	FileType   string    `json:"fileType"`
	IconClass  string    `json:"iconClass,omitempty"`
	Size       string    `json:"size"`
	FilePath   *string   `json:"filePath"`
	UploadDate time.Time `json:"uploadDate"`
	Tags       []string  `json:"tags"`
	Week       *int      `json:"week,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Subtype    string    `json:"subtype,omitempty"`
}

// DisplayName is the name used for duplicate detection: name, falling back to title.
func (r *FileRecord) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Title
}

// SameName reports whether r is listed under name (exact match on name or title).
func (r *FileRecord) SameName(name string) bool {
	return name != "" && (r.Name == name || r.Title == name)
}
