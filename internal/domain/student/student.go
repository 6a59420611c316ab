package student

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/schoolportal/internal/domain/enrollment"
	"github.com/alem-hub/schoolportal/internal/domain/user"
	"github.com/alem-hub/schoolportal/internal/elegant"
)

const (
	// ModelName - имя модели в elegant.Manager.
	ModelName = "Student"

	// Endpoint - REST-ресурс студентов.
	Endpoint = "students"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет текущий статус студента в программе.
type Status string

const (
	// StatusActive - студент активно учится.
	StatusActive Status = "active"
	// StatusInactive - студент неактивен.
	StatusInactive Status = "inactive"
	// StatusGraduated - студент успешно закончил программу.
	StatusGraduated Status = "graduated"
	// StatusLeft - студент покинул программу.
	StatusLeft Status = "left"
)

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusGraduated, StatusLeft:
		return true
	default:
		return false
	}
}

// IsEnrolled возвращает true, если студент всё ещё в программе.
func (s Status) IsEnrolled() bool {
	return s == StatusActive || s == StatusInactive
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

// Schema возвращает описание полей и связей студента.
func Schema() elegant.Schema {
	return elegant.Schema{
		Name:     ModelName,
		Endpoint: Endpoint,
		Fields: map[string]elegant.Field{
			"Id":         {Type: elegant.TypeInt},
			"FirstName":  {Type: elegant.TypeString},
			"LastName":   {Type: elegant.TypeString},
			"Login":      {Type: elegant.TypeString},
			"Email":      {Type: elegant.TypeString},
			"Cohort":     {Type: elegant.TypeString},
			"Status":     {Type: elegant.TypeString},
			"Xp":         {Type: elegant.TypeInt},
			"BirthDate":  {Type: elegant.TypeDate},
			"EnrolledAt": {Type: elegant.TypeDate},
		},
		Relations: map[string]elegant.RelationFunc{
			"Enrollments": func(m *elegant.Model) (elegant.Relation, error) {
				return m.HasMany(enrollment.ModelName, "StudentId", "Id")
			},
			"User": func(m *elegant.Model) (elegant.Relation, error) {
				return m.HasOne(user.ModelName, "StudentId", "Id")
			},
		},
	}
}

// Register регистрирует модель студента в менеджере.
func Register(m *elegant.Manager) error {
	return m.Register(Schema())
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - типизированная обёртка над моделью студента.
type Student struct {
	*elegant.Model
}

// Wrap оборачивает модель.
func Wrap(m *elegant.Model) *Student {
	if m == nil {
		return nil
	}
	return &Student{Model: m}
}

// WrapAll оборачивает все модели коллекции.
func WrapAll(c *elegant.Collection) []*Student {
	out := make([]*Student, 0, c.Len())
	for _, m := range c.All() {
		out = append(out, Wrap(m))
	}
	return out
}

// Find загружает студента по ID. Возвращает ошибку ModelNotFoundError,
// если студента нет.
func Find(ctx context.Context, manager *elegant.Manager, id int64) (*Student, error) {
	b, err := manager.Query(ModelName)
	if err != nil {
		return nil, err
	}
	m, err := b.FindOrFail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find student %d: %w", id, err)
	}
	return Wrap(m), nil
}

// ID возвращает первичный ключ.
func (s *Student) ID() int64 {
	return s.Int("Id")
}

// FullName возвращает "Имя Фамилия", а при их отсутствии - логин.
func (s *Student) FullName() string {
	name := strings.TrimSpace(s.String("FirstName") + " " + s.String("LastName"))
	if name == "" {
		return s.String("Login")
	}
	return name
}

// Cohort возвращает поток студента.
func (s *Student) Cohort() string {
	return s.String("Cohort")
}

// Status возвращает статус студента.
func (s *Student) Status() Status {
	return Status(s.String("Status"))
}

// BirthDate возвращает дату рождения.
func (s *Student) BirthDate() time.Time {
	return s.Time("BirthDate")
}

// EnrolledAt возвращает дату зачисления.
func (s *Student) EnrolledAt() time.Time {
	return s.Time("EnrolledAt")
}

// Enrollments возвращает записи студента на курсы.
func (s *Student) Enrollments(ctx context.Context) ([]*enrollment.Enrollment, error) {
	value, err := s.GetAttribute(ctx, "Enrollments")
	if err != nil {
		return nil, fmt.Errorf("load enrollments of student %d: %w", s.ID(), err)
	}
	c, ok := value.(*elegant.Collection)
	if !ok {
		return nil, fmt.Errorf("student %d: enrollments is %T", s.ID(), value)
	}
	return enrollment.WrapAll(c), nil
}

// ActiveEnrollments возвращает записи, активные в момент at.
func (s *Student) ActiveEnrollments(ctx context.Context, at time.Time) ([]*enrollment.Enrollment, error) {
	all, err := s.Enrollments(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*enrollment.Enrollment, 0, len(all))
	for _, e := range all {
		if e.IsActiveAt(at) {
			active = append(active, e)
		}
	}
	return active, nil
}

// User возвращает учётную запись студента или nil.
func (s *Student) User(ctx context.Context) (*user.User, error) {
	value, err := s.GetAttribute(ctx, "User")
	if err != nil {
		return nil, fmt.Errorf("load user of student %d: %w", s.ID(), err)
	}
	m, _ := value.(*elegant.Model)
	return user.Wrap(m), nil
}
