package people

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Alp4ka/relaypager"
)

// Person is a directory entry served by the people API.
type Person struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	FirstName string    `gorm:"size:100;not null" json:"firstName"`
	LastName  string    `gorm:"size:100;not null;index" json:"lastName"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}

func (Person) TableName() string {
	return "people"
}

// BeforeCreate assigns a random id to people created without one.
func (p *Person) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	return nil
}

// personGetters read sort-key values off a Person. Ids are compared in their
// canonical string form, the way they are stored.
var personGetters = relaypager.Getters[Person]{
	"id":         func(p Person) any { return p.ID.String() },
	"first_name": func(p Person) any { return p.FirstName },
	"last_name":  func(p Person) any { return p.LastName },
	"email":      func(p Person) any { return p.Email },
	"created_at": func(p Person) any { return p.CreatedAt },
}

// sortColumns maps the sort aliases accepted from clients to columns.
var sortColumns = relaypager.ColumnMapping{
	"firstName": "first_name",
	"lastName":  "last_name",
	"email":     "email",
	"createdAt": "created_at",
}

// searchColumns are matched against the search string.
var searchColumns = []string{"first_name", "last_name", "email"}
