package student

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alem-hub/counseling-hub/internal/domain/branch"
)

// ══════════════════════════════════════════════════════════════════════════════
// CODEC
// Сериализованная форма набора записей - JSON-массив в порядке вставки.
// Такой же формат использует любое хранилище (sqlite, postgres, redis).
// ══════════════════════════════════════════════════════════════════════════════

// legacyFields - поля старого формата, которые переносятся при чтении.
type legacyFields struct {
	PaymentVerified *bool `json:"paymentVerified"`
	Academics       *struct {
		AllocatedBranch *branch.Code `json:"allocatedBranch"`
	} `json:"academics"`
}

// DecodeRecords разбирает сериализованный набор записей.
//
// Нормализация:
//   - email приводится к нижнему регистру, записи без email пропускаются
//   - при повторе email остаётся первая запись
//   - academics.allocatedBranch переносится наверх, если верхнее поле пусто
//   - paymentVerified переносится в payment.verified
//   - totalMarks12 пересчитывается из оценок, если она задана
//
// Пустой ввод - пустой набор без ошибки.
func DecodeRecords(data []byte) ([]*Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []*Record{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	out := make([]*Record, 0, len(raw))
	seen := make(map[Email]bool, len(raw))
	for i, item := range raw {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}
		var legacy legacyFields
		if err := json.Unmarshal(item, &legacy); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", i, err)
		}

		rec.Email = Email(strings.ToLower(strings.TrimSpace(string(rec.Email))))
		if rec.Email == "" || seen[rec.Email] {
			continue
		}
		seen[rec.Email] = true

		normalize(&rec, legacy)
		out = append(out, &rec)
	}
	return out, nil
}

func normalize(rec *Record, legacy legacyFields) {
	if rec.AllocatedBranch != nil && *rec.AllocatedBranch == "" {
		rec.AllocatedBranch = nil
	}
	if rec.AllocatedBranch == nil && legacy.Academics != nil &&
		legacy.Academics.AllocatedBranch != nil && *legacy.Academics.AllocatedBranch != "" {
		code := *legacy.Academics.AllocatedBranch
		rec.AllocatedBranch = &code
	}

	if legacy.PaymentVerified != nil && *legacy.PaymentVerified && rec.Payment != nil {
		rec.Payment.Verified = true
	}

	if rec.Academics != nil && rec.Academics.TotalMarks12 != nil {
		total := rec.Academics.Aggregate()
		rec.Academics.TotalMarks12 = &total
	}
}

// EncodeRecords сериализует набор записей. nil кодируется как пустой массив.
func EncodeRecords(records []*Record) ([]byte, error) {
	if records == nil {
		records = []*Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return data, nil
}
