// Package student содержит доменную модель записи абитуриента.
//
// Запись (Record) идентифицируется email и накапливает три блока данных,
// которые студент заполняет сам:
//
//   - Profile: личные данные и контакты родителя
//   - Academics: оценки 10 и 10+2 классов и два предпочтения направлений
//   - Payment: подтверждение оплаты консультационного сбора
//
// и два поля, которые пишет только администрирование:
//
//   - Rank: плотный ранг по сумме четырёх предметов 10+2
//   - AllocatedBranch: итог распределения мест
//
// # Хранилище
//
// Хранилище работает целиком: Load читает весь набор записей, Save
// переписывает его полностью. Порядок записей - порядок вставки.
// Блокировок нет; при одновременной работе двух сессий выигрывает
// последняя запись (last-writer-wins), если не включён оптимистический
// режим с версией снапшота:
//
//	snap, err := repo.Load(ctx)
//	if err != nil {
//	    return err
//	}
//	rec := snap.Upsert(email, time.Now())
//	if err := rec.SubmitAcademics(academics, time.Now()); err != nil {
//	    return err
//	}
//	return repo.Save(ctx, snap)
//
// # Совместимость данных
//
// Исторически направление иногда сохранялось внутри academics, а флаг
// проверки оплаты - на верхнем уровне записи. DecodeRecords переносит
// эти поля в единственные авторитетные места: Record.AllocatedBranch и
// Payment.Verified.
package student
