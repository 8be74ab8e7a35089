package models

import "time"

// Tutor is a personal tutor profile used to seed chat sessions.
type Tutor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	Goal        string    `json:"goal"`
	Note        string    `json:"note"`
	FileContext string    `json:"fileContext"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TutorPatch carries the fields of a tutor update; nil fields are left unchanged.
type TutorPatch struct {
	Name        *string `json:"name"`
	Subject     *string `json:"subject"`
	Goal        *string `json:"goal"`
	Note        *string `json:"note"`
	FileContext *string `json:"fileContext"`
}

// Apply copies the non-nil fields of p onto t.
func (p TutorPatch) Apply(t *Tutor) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Goal != nil {
		t.Goal = *p.Goal
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	if p.FileContext != nil {
		t.FileContext = *p.FileContext
	}
}
