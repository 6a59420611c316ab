// Package student описывает модель студента школьного портала.
//
// Студент загружается с эндпоинта "students" через elegant.Manager:
//
//	manager, _ := elegant.NewManager(resolver, elegant.DefaultManagerConfig())
//	_ = student.Register(manager)
//
//	s, err := student.Find(ctx, manager, 42)
//	if err != nil {
//	    return err
//	}
//	enrollments, err := s.Enrollments(ctx)
//
// Связи Enrollments (HasMany) и User (HasOne) разрешаются лениво, одним
// запросом при первом обращении, и кешируются в модели.
package student
