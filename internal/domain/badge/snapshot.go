package badge

import (
	"time"

	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/internal/domain/streak"
)

// Mode - режим оценки.
type Mode string

const (
	// ModeIncremental - реакция на одно действие ученика. Серия считается текущей.
	ModeIncremental Mode = "incremental"

	// ModeRetroactive - пересчёт по всей истории (бэкфилл). Серия считается лучшей.
	ModeRetroactive Mode = "retroactive"
)

// Snapshot - агрегированный прогресс ученика на момент оценки. Никогда не сохраняется.
type Snapshot struct {
	UserID      string
	Submissions []coursework.Submission
	Assignments map[string]coursework.Assignment
	Coins       int64
	Level       int
	Grade       shared.Grade
	Now         time.Time
	Location    *time.Location
}

// WithSubmission возвращает снимок, в котором гарантированно есть сдача s
// (хранилище может ещё не отдавать только что созданную запись).
func (s Snapshot) WithSubmission(sub coursework.Submission) Snapshot {
	for i, existing := range s.Submissions {
		if existing.ID == sub.ID {
			merged := make([]coursework.Submission, len(s.Submissions))
			copy(merged, s.Submissions)
			merged[i] = sub
			s.Submissions = merged
			return s
		}
	}
	merged := make([]coursework.Submission, 0, len(s.Submissions)+1)
	merged = append(merged, s.Submissions...)
	s.Submissions = append(merged, sub)
	return s
}

// average - накопитель средней оценки.
type average struct {
	sum   float64
	count int
}

func (a *average) add(v float64) {
	a.sum += v
	a.count++
}

func (a average) value() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// Stats - метрики снимка, посчитанные один раз за запуск.
type Stats struct {
	Submissions      int
	PerfectScores    int
	EarlySubmissions int
	CurrentStreak    int
	LongestStreak    int
	Coins            int64

	overall   average
	bySubject map[shared.Subject]*average
}

// ComputeStats считает метрики. Сдачи без найденного задания или с некорректной
// оценкой не участвуют в метриках, которым нужно задание или оценка.
func ComputeStats(s Snapshot) Stats {
	st := Stats{
		Submissions: len(s.Submissions),
		Coins:       s.Coins,
		bySubject:   make(map[shared.Subject]*average),
	}

	activity := make([]time.Time, 0, len(s.Submissions))
	for _, sub := range s.Submissions {
		activity = append(activity, sub.SubmittedAt)

		asg, ok := s.Assignments[sub.AssignmentID]
		if !ok {
			continue
		}
		if coursework.IsPerfect(sub, asg) {
			st.PerfectScores++
		}
		if coursework.IsEarly(sub, asg) {
			st.EarlySubmissions++
		}
		if norm, ok := coursework.Normalized(sub, asg); ok {
			st.overall.add(norm)
			subj := asg.Subject.Normalize()
			acc, ok := st.bySubject[subj]
			if !ok {
				acc = &average{}
				st.bySubject[subj] = acc
			}
			acc.add(norm)
		}
	}

	r := streak.Calculate(activity, s.Now, s.Location)
	st.CurrentStreak = r.Current
	st.LongestStreak = r.Longest
	return st
}

// Average возвращает среднюю оценку (0-20) и число оценённых сдач.
func (st Stats) Average() (float64, int) {
	return st.overall.value(), st.overall.count
}

// SubjectAverage возвращает среднюю оценку по предмету и число оценённых сдач.
func (st Stats) SubjectAverage(subject shared.Subject) (float64, int) {
	acc, ok := st.bySubject[subject.Normalize()]
	if !ok {
		return 0, 0
	}
	return acc.value(), acc.count
}

// SubjectAverages возвращает средние по всем предметам.
func (st Stats) SubjectAverages() map[shared.Subject]float64 {
	out := make(map[shared.Subject]float64, len(st.bySubject))
	for subj, acc := range st.bySubject {
		out[subj] = acc.value()
	}
	return out
}

// Met проверяет условие в заданном режиме.
func (st Stats) Met(req Requirement, mode Mode) bool {
	switch req.Kind {
	case ReqSubmissions:
		return float64(st.Submissions) >= req.Threshold
	case ReqPerfectScores:
		return float64(st.PerfectScores) >= req.Threshold
	case ReqStreak:
		if mode == ModeRetroactive {
			return float64(st.LongestStreak) >= req.Threshold
		}
		return float64(st.CurrentStreak) >= req.Threshold
	case ReqCoins:
		return float64(st.Coins) >= req.Threshold
	case ReqAverageScore:
		avg, n := st.Average()
		return n > 0 && n >= req.MinSubmissions && avg >= req.Threshold
	case ReqSubjectAverage:
		avg, n := st.SubjectAverage(req.Subject)
		return n > 0 && n >= req.MinSubmissions && avg >= req.Threshold
	case ReqEarlySubmissions:
		return float64(st.EarlySubmissions) >= req.Threshold
	default:
		return false
	}
}
