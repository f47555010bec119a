// Package moderation решает до любой записи, можно ли публиковать пару (title, description):
// сначала локальный стоп-лист, затем один вызов удалённого классификатора.
package moderation

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/edume/internal/logger"
)

type Verdict int

const (
	Approved Verdict = iota
	Rejected
)

func (v Verdict) String() string {
	if v == Rejected {
		return "rejected"
	}
	return "approved"
}

// Stage: этап, на котором принято решение.
type Stage string

const (
	StageKeywords   Stage = "keywords"
	StageClassifier Stage = "classifier"
)

// Decision: результат Screen. Degraded=true: классификатор недоступен, контент пропущен
// без удалённой проверки (fail open).
type Decision struct {
	Verdict  Verdict
	Reason   string
	Degraded bool
	Stage    Stage
}

func (d Decision) Approved() bool { return d.Verdict == Approved }

// RejectionError: отказ по политике контента. Текст причины можно показывать пользователю.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "content flagged: " + e.Reason }

const defaultReason = "inappropriate content"

// Подкатегории классификатора, сливаемые в одну метку (OR).
var labelGroups = []struct {
	Label      string
	Categories []string
}{
	{"sexual content", []string{"sexual", "sexual/minors"}},
	{"hate speech", []string{"hate", "hate/threatening"}},
	{"harassment", []string{"harassment", "harassment/threatening"}},
	{"violence", []string{"violence", "violence/graphic"}},
	{"self-harm", []string{"self-harm", "self-harm/intent", "self-harm/instructions"}},
}

type Gate struct {
	classifier Classifier
	degraded   atomic.Int64
}

// NewGate создаёт гейт. classifier == nil, удалённый этап всегда недоступен (деградированное одобрение).
func NewGate(classifier Classifier) *Gate {
	if classifier == nil {
		classifier = NewClient("", "", 0)
	}
	return &Gate{classifier: classifier}
}

// Screen вызывается один раз на попытку публикации; повторов нет.
func (g *Gate) Screen(ctx context.Context, title, description string) Decision {
	defer logger.DeferLogDuration("moderation.Screen", time.Now())()
	combined := title + "\n" + description
	lower := cases.Lower(language.Und).String(combined)
	if group, term, ok := matchKeyword(lower); ok {
		return Decision{
			Verdict: Rejected,
			Reason:  "illegal or prohibited activity: " + group + " (" + term + ")",
			Stage:   StageKeywords,
		}
	}

	res, err := g.classifier.Classify(ctx, combined)
	if err != nil {
		n := g.degraded.Add(1)
		logger.Errorf("moderation: classifier unavailable, approved without remote check (degraded #%d): %v", n, err)
		return Decision{Verdict: Approved, Degraded: true, Stage: StageClassifier}
	}
	if res.Flagged {
		return Decision{Verdict: Rejected, Reason: flaggedReason(res.Categories), Stage: StageClassifier}
	}
	return Decision{Verdict: Approved, Stage: StageClassifier}
}

// DegradedCount: сколько решений принято без удалённой проверки с момента старта.
func (g *Gate) DegradedCount() int64 {
	return g.degraded.Load()
}

func flaggedReason(categories map[string]bool) string {
	var labels []string
	for _, lg := range labelGroups {
		for _, c := range lg.Categories {
			if categories[c] {
				labels = append(labels, lg.Label)
				break
			}
		}
	}
	if len(labels) == 0 {
		return defaultReason
	}
	return strings.Join(labels, ", ")
}
