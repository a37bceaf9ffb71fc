package postgres

import (
	"github.com/k9quest/progression-hub/internal/application/query"
	"github.com/k9quest/progression-hub/internal/domain/badge"
	"github.com/k9quest/progression-hub/internal/domain/challenge"
	"github.com/k9quest/progression-hub/internal/domain/coursework"
	"github.com/k9quest/progression-hub/internal/domain/path"
	"github.com/k9quest/progression-hub/internal/domain/profile"
	"github.com/k9quest/progression-hub/internal/domain/scoring"
)

var (
	_ coursework.SubmissionRepository = submissionView{}
	_ coursework.AssignmentRepository = assignmentView{}
	_ coursework.Recorder             = (*CourseworkRepository)(nil)
	_ profile.Repository              = (*ProfileRepository)(nil)
	_ profile.Ledger                  = (*ProfileRepository)(nil)
	_ badge.Repository                = (*BadgeRepository)(nil)
	_ scoring.RuleRepository          = (*ScoringRepository)(nil)
	_ scoring.AuditRepository         = (*ScoringRepository)(nil)
	_ path.Repository                 = (*PathRepository)(nil)
	_ path.ProgressRepository         = (*ProgressRepository)(nil)
	_ challenge.Repository            = (*ChallengeRepository)(nil)
	_ query.CoinBoard                 = (*CoinBoard)(nil)
)
