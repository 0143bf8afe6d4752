package model

import (
	"time"
)

// Defense is a scheduled thesis defense. Defenses are owned by the scheduling
// subsystem; the workflow only reads them and records the final grade.
type Defense struct {
	ID           string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Title        string        `json:"title"`
	Date         time.Time     `gorm:"index" json:"date"`
	Location     string        `json:"location"`
	CourseID     string        `gorm:"type:varchar(64);index" json:"course_id"`
	Status       DefenseStatus `gorm:"type:varchar(16);index" json:"status"`
	Result       DefenseResult `gorm:"type:varchar(16)" json:"result"`
	FinalGrade   *float64      `json:"final_grade,omitempty"`
	Participants []Participant `gorm:"foreignKey:DefenseID" json:"participants,omitempty"`
}

// Participant links a user to a defense in a given role
type Participant struct {
	ID        uint   `gorm:"primarykey" json:"-"`
	DefenseID string `gorm:"type:varchar(36);index" json:"-"`
	UserID    string `gorm:"type:varchar(64);index" json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `gorm:"type:varchar(16)" json:"role"`
	// Registration is the student enrollment number; empty for other roles
	Registration string `json:"registration,omitempty"`
}

// ParticipantsWithRole returns all participants with the passed role
func (d Defense) ParticipantsWithRole(role Role) []Participant {
	var out []Participant
	for _, p := range d.Participants {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// Participant returns the participant with the passed user id, if any
func (d Defense) Participant(userID string) *Participant {
	for i := range d.Participants {
		if d.Participants[i].UserID == userID {
			return &d.Participants[i]
		}
	}
	return nil
}

// StudentRegistrations returns the registration numbers of all students
func (d Defense) StudentRegistrations() []string {
	var regs []string
	for _, p := range d.ParticipantsWithRole(RoleStudent) {
		regs = append(regs, p.Registration)
	}
	return regs
}

// DefensesStore gives access to defenses
type DefensesStore interface {
	Get(id string) (*Defense, error)
	Create(defense *Defense) error
}
