// Package matcher pairs bank credits with pending sales.
//
// Matching is pure: it works on a snapshot of transactions and sales and
// returns decisions; persisting them is the caller's job.
package matcher

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/jask/bankrecon/internal/database/repository"
)

const (
	// DateWindow is the largest gap between a credit and a sale that still
	// counts as a date match.
	DateWindow = 72 * time.Hour

	ManualConfidence = 100

	amountWeight    = 40
	sameDayWeight   = 30
	referenceWeight = 30
)

// AmountTolerance is exclusive: differences must be strictly smaller.
var AmountTolerance = decimal.New(1, -2)

// Match is an automatic pairing.
type Match struct {
	Transaction repository.BankTransaction
	Sale        repository.Sale
	Confidence  int
}

// Candidate is one of several sales an ambiguous transaction could settle.
type Candidate struct {
	Sale       repository.Sale
	Confidence int
	Similarity float64
}

// Ambiguous is a transaction with more than one candidate sale, best first.
type Ambiguous struct {
	Transaction repository.BankTransaction
	Candidates  []Candidate
}

// Result of one matching pass.
type Result struct {
	Matches   []Match
	Ambiguous []Ambiguous
	Unmatched []repository.BankTransaction
}

// Matcher holds the calendar used for same-day comparisons.
type Matcher struct {
	loc *time.Location
}

func New(loc *time.Location) *Matcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Matcher{loc: loc}
}

// Run matches each credit in txs, in order, against the sales pool. A sale
// chosen for an automatic match leaves the pool, so it is never offered to a
// later transaction of the same pass. Debits are reported as unmatched.
func (m *Matcher) Run(txs []repository.BankTransaction, sales []repository.Sale) Result {
	pool := make([]repository.Sale, len(sales))
	copy(pool, sales)

	var res Result
	for _, tx := range txs {
		if tx.Direction != repository.Credit || tx.Reconciled {
			res.Unmatched = append(res.Unmatched, tx)
			continue
		}
		var cands []int
		for i, s := range pool {
			if m.IsCandidate(tx, s) {
				cands = append(cands, i)
			}
		}
		switch len(cands) {
		case 0:
			res.Unmatched = append(res.Unmatched, tx)
		case 1:
			s := pool[cands[0]]
			res.Matches = append(res.Matches, Match{Transaction: tx, Sale: s, Confidence: m.Score(tx, s)})
			pool = append(pool[:cands[0]], pool[cands[0]+1:]...)
		default:
			amb := Ambiguous{Transaction: tx}
			for _, i := range cands {
				s := pool[i]
				amb.Candidates = append(amb.Candidates, Candidate{
					Sale:       s,
					Confidence: m.Score(tx, s),
					Similarity: Similarity(tx.Description, s.ClientName),
				})
			}
			sort.SliceStable(amb.Candidates, func(i, j int) bool {
				a, b := amb.Candidates[i], amb.Candidates[j]
				if a.Confidence != b.Confidence {
					return a.Confidence > b.Confidence
				}
				return a.Similarity > b.Similarity
			})
			res.Ambiguous = append(res.Ambiguous, amb)
		}
	}
	return res
}

// IsCandidate reports amountMatch AND (dateMatch OR refMatch).
func (m *Matcher) IsCandidate(tx repository.BankTransaction, s repository.Sale) bool {
	if !AmountMatches(tx.Amount, s.Total) {
		return false
	}
	return DateMatches(tx.Date, s.CreatedAt) || ReferenceMatches(tx.Description, s)
}

// Score is the confidence of pairing tx with s, in [0, 100].
func (m *Matcher) Score(tx repository.BankTransaction, s repository.Sale) int {
	score := 0
	if AmountMatches(tx.Amount, s.Total) {
		score += amountWeight
	}
	if m.SameDay(tx.Date, s.CreatedAt) {
		score += sameDayWeight
	}
	if ReferenceMatches(tx.Description, s) {
		score += referenceWeight
	}
	return clamp(score)
}

// SameDay compares calendar days in the matcher's location.
func (m *Matcher) SameDay(a, b time.Time) bool {
	ya, ma, da := a.In(m.loc).Date()
	yb, mb, db := b.In(m.loc).Date()
	return ya == yb && ma == mb && da == db
}

func AmountMatches(amount, total decimal.Decimal) bool {
	return amount.Sub(total).Abs().LessThan(AmountTolerance)
}

func DateMatches(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= DateWindow
}

// ReferenceMatches is a case-insensitive containment of the sale id, its
// external reference or the client name in the description. Empty values
// never match.
func ReferenceMatches(description string, s repository.Sale) bool {
	desc := strings.ToUpper(description)
	for _, ref := range []string{s.ID, s.ExternalReference, s.ClientName} {
		ref = strings.TrimSpace(ref)
		if ref != "" && strings.Contains(desc, strings.ToUpper(ref)) {
			return true
		}
	}
	return false
}

// Similarity is 1 - normalized levenshtein distance between the upper-cased
// strings; 0 when either is empty.
func Similarity(a, b string) float64 {
	a, b = strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
