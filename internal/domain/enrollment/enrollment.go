// Package enrollment описывает запись студента на курс.
// Эндпоинт вложен в ресурс студента: "students/:StudentId/enrollments",
// поэтому запрос обязан содержать условие по StudentId.
package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/schoolportal/internal/elegant"
)

const (
	// ModelName - имя модели в elegant.Manager.
	ModelName = "Enrollment"

	// Endpoint - REST-ресурс записей; :StudentId подставляется из условия.
	Endpoint = "students/:StudentId/enrollments"

	// studentModel совпадает с student.ModelName; пакет student импортирует этот.
	studentModel = "Student"
)

// Schema возвращает описание полей и связей записи.
func Schema() elegant.Schema {
	return elegant.Schema{
		Name:     ModelName,
		Endpoint: Endpoint,
		Fields: map[string]elegant.Field{
			"Id":        {Type: elegant.TypeInt},
			"StudentId": {Type: elegant.TypeInt},
			"Course":    {Type: elegant.TypeString},
			"Grade":     {Type: elegant.TypeFloat},
			"Start":     {Type: elegant.TypeDate},
			"End":       {Type: elegant.TypeDate},
		},
		Relations: map[string]elegant.RelationFunc{
			"Student": func(m *elegant.Model) (elegant.Relation, error) {
				return m.HasOne(studentModel, "Id", "StudentId")
			},
		},
	}
}

// Register регистрирует модель записи в менеджере.
func Register(m *elegant.Manager) error {
	return m.Register(Schema())
}

// Enrollment - типизированная обёртка над моделью записи.
type Enrollment struct {
	*elegant.Model
}

// Wrap оборачивает модель.
func Wrap(m *elegant.Model) *Enrollment {
	if m == nil {
		return nil
	}
	return &Enrollment{Model: m}
}

// WrapAll оборачивает все модели коллекции.
func WrapAll(c *elegant.Collection) []*Enrollment {
	out := make([]*Enrollment, 0, c.Len())
	for _, m := range c.All() {
		out = append(out, Wrap(m))
	}
	return out
}

// ForStudent загружает все записи студента.
func ForStudent(ctx context.Context, manager *elegant.Manager, studentID int64) ([]*Enrollment, error) {
	b, err := manager.Query(ModelName)
	if err != nil {
		return nil, err
	}
	c, err := b.Where("StudentId", studentID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("enrollments of student %d: %w", studentID, err)
	}
	return WrapAll(c), nil
}

// ID возвращает первичный ключ.
func (e *Enrollment) ID() int64 {
	return e.Int("Id")
}

// StudentID возвращает ID студента.
func (e *Enrollment) StudentID() int64 {
	return e.Int("StudentId")
}

// Course возвращает название курса.
func (e *Enrollment) Course() string {
	return e.String("Course")
}

// Start возвращает дату начала.
func (e *Enrollment) Start() time.Time {
	return e.Time("Start")
}

// End возвращает дату окончания; нулевое время - курс без даты окончания.
func (e *Enrollment) End() time.Time {
	return e.Time("End")
}

// IsActiveAt проверяет, идёт ли курс в момент at.
func (e *Enrollment) IsActiveAt(at time.Time) bool {
	start, end := e.Start(), e.End()
	if start.IsZero() || at.Before(start) {
		return false
	}
	return end.IsZero() || !at.After(end)
}

// Student возвращает модель студента или nil.
func (e *Enrollment) Student(ctx context.Context) (*elegant.Model, error) {
	value, err := e.GetAttribute(ctx, "Student")
	if err != nil {
		return nil, fmt.Errorf("load student of enrollment %d: %w", e.ID(), err)
	}
	m, _ := value.(*elegant.Model)
	return m, nil
}
