package badge

// ══════════════════════════════════════════════════════════════════════════════
// RUN LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// RunLedger - множество занятых ключей на время одного запуска оценки.
// Засевается существующими значками и пополняется сразу после каждой выдачи,
// поэтому одна ступень не может быть выдана дважды за запуск.
type RunLedger struct {
	awarded []Badge
	// index: ключ -> позиция в awarded, -1 для значков, выданных до запуска.
	index map[Key]int
}

// NewRunLedger создаёт леджер по уже выданным значкам.
func NewRunLedger(existing []Badge) *RunLedger {
	l := &RunLedger{index: make(map[Key]int, len(existing)*2)}
	for _, b := range existing {
		for _, k := range b.keys() {
			l.index[k] = -1
		}
	}
	return l
}

// Has проверяет, занят ли ключ.
func (l *RunLedger) Has(k Key) bool {
	_, ok := l.index[k]
	return ok
}

// Record фиксирует выдачу значка по определению def.
func (l *RunLedger) Record(def Definition, b Badge) {
	l.awarded = append(l.awarded, b)
	l.index[def.Key()] = len(l.awarded) - 1
}

// Awarded возвращает значки, выданные в этом запуске, в порядке выдачи.
func (l *RunLedger) Awarded() []Badge {
	out := make([]Badge, len(l.awarded))
	copy(out, l.awarded)
	return out
}

// Len - число значков, выданных в этом запуске.
func (l *RunLedger) Len() int {
	return len(l.awarded)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// IDFunc генерирует ID новых записей.
type IDFunc func() string

// Evaluate проходит каталог в порядке объявления и возвращает новые значки.
// Каждая выдача сразу попадает в ledger. Функция чистая: ничего не сохраняет.
func Evaluate(catalog Catalog, snap Snapshot, mode Mode, ledger *RunLedger, newID IDFunc) []Badge {
	stats := ComputeStats(snap)

	var out []Badge
	for _, def := range catalog {
		if ledger.Has(def.Key()) {
			continue
		}
		if !stats.Met(def.Requirement, mode) {
			continue
		}
		b := New(newID(), snap.UserID, def, snap.Now)
		ledger.Record(def, b)
		out = append(out, b)
	}
	return out
}
