package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/bankrecon/internal/database/repository"
)

var day = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func credit(id, desc, amount string, at time.Time) repository.BankTransaction {
	return repository.BankTransaction{
		ID:          id,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Direction:   repository.Credit,
		Date:        at,
	}
}

func sale(id, client, total string, at time.Time) repository.Sale {
	return repository.Sale{
		ID:            id,
		ClientName:    client,
		Total:         decimal.RequireFromString(total),
		PaymentStatus: repository.PaymentPending,
		PaymentMethod: repository.MethodBankTransfer,
		CreatedAt:     at,
	}
}

func TestExactMatchScoresFull(t *testing.T) {
	t.Parallel()

	m := New(time.UTC)
	tx := credit("t1", "SPEI RECIBIDO S-100 PAGO", "1500.00", day)
	s := sale("S-100", "Maria Lopez", "1500.00", day.Add(-2*time.Hour))

	res := m.Run([]repository.BankTransaction{tx}, []repository.Sale{s})
	require.Len(t, res.Matches, 1)
	require.Empty(t, res.Ambiguous)
	require.Empty(t, res.Unmatched)
	require.Equal(t, "S-100", res.Matches[0].Sale.ID)
	require.Equal(t, 100, res.Matches[0].Confidence)
}

func TestFarApartWithoutReferenceIsUnmatched(t *testing.T) {
	t.Parallel()

	m := New(time.UTC)
	tx := credit("t1", "DEPOSITO", "1500.00", day)
	s := sale("S-100", "Maria Lopez", "1500.00", day.AddDate(0, 0, -5))

	res := m.Run([]repository.BankTransaction{tx}, []repository.Sale{s})
	require.Empty(t, res.Matches)
	require.Empty(t, res.Ambiguous)
	require.Len(t, res.Unmatched, 1)
}

func TestTwoCandidatesAreAmbiguous(t *testing.T) {
	t.Parallel()

	m := New(time.UTC)
	tx := credit("t1", "TRANSFERENCIA JUAN PEREZ", "250.00", day)
	a := sale("S-1", "Ana Ruiz", "250.00", day)
	b := sale("S-2", "Juan Perea", "250.00", day)

	res := m.Run([]repository.BankTransaction{tx}, []repository.Sale{a, b})
	require.Empty(t, res.Matches)
	require.Len(t, res.Ambiguous, 1)
	cands := res.Ambiguous[0].Candidates
	require.Len(t, cands, 2)
	// same confidence, closer client name ranks first
	require.Equal(t, "S-2", cands[0].Sale.ID)
	require.Greater(t, cands[0].Similarity, cands[1].Similarity)
}

func TestReferenceRescuesDateGap(t *testing.T) {
	t.Parallel()

	m := New(time.UTC)
	tx := credit("t1", "pago maria lopez", "99.99", day)
	s := sale("S-9", "Maria Lopez", "99.99", day.AddDate(0, 0, -10))

	res := m.Run([]repository.BankTransaction{tx}, []repository.Sale{s})
	require.Len(t, res.Matches, 1)
	require.Equal(t, 70, res.Matches[0].Confidence)
}

func TestAmountToleranceIsStrict(t *testing.T) {
	t.Parallel()

	require.True(t, AmountMatches(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.009")))
	require.False(t, AmountMatches(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.01")))
	require.False(t, AmountMatches(decimal.RequireFromString("100.00"), decimal.RequireFromString("99.99")))
}

func TestDateWindowBoundary(t *testing.T) {
	t.Parallel()

	require.True(t, DateMatches(day, day.Add(72*time.Hour)))
	require.True(t, DateMatches(day.Add(72*time.Hour), day))
	require.False(t, DateMatches(day, day.Add(72*time.Hour+time.Second)))
}

func TestEmptyClientNameNeverMatches(t *testing.T) {
	t.Parallel()

	require.False(t, ReferenceMatches("ANY TEXT", repository.Sale{ID: " ", ClientName: ""}))
	require.True(t, ReferenceMatches("ref v-2001", repository.Sale{ID: "x", ExternalReference: "V-2001"}))
}

func TestSameDayUsesLocation(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)
	// 2025-03-11 02:00 UTC is still 2025-03-10 in Mexico City.
	late := time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)
	early := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)

	require.True(t, New(loc).SameDay(late, early))
	require.False(t, New(time.UTC).SameDay(late, early))
}

func TestScoreBounds(t *testing.T) {
	t.Parallel()

	m := New(time.UTC)
	amounts := []string{"0", "10", "10.005", "-10", "1500"}
	offsets := []time.Duration{0, time.Hour, 30 * time.Hour, 96 * time.Hour, -500 * time.Hour}
	descs := []string{"", "S-1", "ana", "nothing"}
	for _, a := range amounts {
		for _, off := range offsets {
			for _, d := range descs {
				score := m.Score(credit("t", d, a, day.Add(off)), sale("S-1", "Ana", "10", day))
				require.GreaterOrEqual(t, score, 0)
				require.LessOrEqual(t, score, 100)
			}
		}
	}
}

func TestAutoMatchOnlyWithSingleCandidate(t *testing.T) {
	t.Parallel()

	m := New(time.UTC)
	sales := []repository.Sale{
		sale("S-1", "", "10", day),
		sale("S-2", "", "10", day),
		sale("S-3", "", "20", day),
	}
	for _, tx := range []repository.BankTransaction{
		credit("a", "x", "10", day),
		credit("b", "x", "20", day),
		credit("c", "x", "30", day),
	} {
		n := 0
		for _, s := range sales {
			if m.IsCandidate(tx, s) {
				n++
			}
		}
		res := m.Run([]repository.BankTransaction{tx}, sales)
		require.Equal(t, n == 1, len(res.Matches) == 1, "tx %s", tx.ID)
	}
}

func TestClaimedSaleLeavesPool(t *testing.T) {
	t.Parallel()

	m := New(time.UTC)
	first := credit("t1", "PAGO S-1", "10", day)
	second := credit("t2", "PAGO S-1", "10", day.Add(time.Minute))
	s := sale("S-1", "", "10", day)

	res := m.Run([]repository.BankTransaction{first, second}, []repository.Sale{s})
	require.Len(t, res.Matches, 1)
	require.Equal(t, "t1", res.Matches[0].Transaction.ID)
	require.Len(t, res.Unmatched, 1)
	require.Equal(t, "t2", res.Unmatched[0].ID)
}

func TestDebitsAreSkipped(t *testing.T) {
	t.Parallel()

	tx := credit("t1", "S-1", "10", day)
	tx.Direction = repository.Debit
	res := New(time.UTC).Run([]repository.BankTransaction{tx}, []repository.Sale{sale("S-1", "", "10", day)})
	require.Empty(t, res.Matches)
	require.Len(t, res.Unmatched, 1)
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Similarity("ana", "ANA"))
	require.Equal(t, 0.0, Similarity("", "ANA"))
	require.InDelta(t, 0.75, Similarity("abcd", "abce"), 1e-9)
}
