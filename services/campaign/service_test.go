package campaign

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abujawed11/engage-swap-sub000/pkg/config"
	"github.com/abujawed11/engage-swap-sub000/services/eligibility"
	"github.com/abujawed11/engage-swap-sub000/services/quiz"
	"github.com/abujawed11/engage-swap-sub000/services/scoring"
	"github.com/abujawed11/engage-swap-sub000/services/testutil"
	"github.com/abujawed11/engage-swap-sub000/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *wallet.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&Campaign{},
		&quiz.Question{},
		&wallet.Transaction{},
		&wallet.Balance{},
		&wallet.AuditLog{},
		&eligibility.DailyClaimCounter{},
		&eligibility.ActivityRecord{},
		&scoring.RotationTracking{},
	)
	node := testutil.NewNode(t)
	w := wallet.NewService(wallet.ServiceParams{DB: db, Node: node})
	q := quiz.NewService(quiz.ServiceParams{DB: db, Node: node})

	svc := NewService(ServiceParams{DB: db, Node: node, Cfg: &config.Config{}, Wallet: w, Quiz: q})
	return svc, w, db
}

func seedWallet(t *testing.T, w *wallet.Service, userID string, amount float64) {
	t.Helper()
	_, err := w.AdminAdjust(context.Background(), userID, decimal.NewFromFloat(amount), true, "seed", "seed-"+userID)
	require.NoError(t, err)
}

func validQuestions() []quiz.QuestionInput {
	return []quiz.QuestionInput{
		{Prompt: "p1", Answer: "a1"},
		{Prompt: "p2", Answer: "a2"},
		{Prompt: "p3", Answer: "a3"},
		{Prompt: "p4", Answer: "a4"},
		{Prompt: "p5", Answer: "a5"},
	}
}

func createRequest(owner string) CreateCampaignRequest {
	return CreateCampaignRequest{
		OwnerID:       owner,
		Title:         "Visit us",
		URL:           "https://example.com/landing",
		Payout:        decimal.NewFromFloat(1),
		WatchDuration: 30,
		Total:         10,
		Questions:     validQuestions(),
	}
}

func TestCreateDebitsOwnerUpfront(t *testing.T) {
	svc, w, _ := newTestService(t)
	ctx := context.Background()
	seedWallet(t, w, "owner-1", 100)

	c, err := svc.Create(ctx, createRequest("owner-1"))
	require.NoError(t, err)
	require.NotEmpty(t, c.Code)

	balance, err := w.GetBalance(ctx, "owner-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(90)))

	questions, err := svc.quiz.QuestionsFor(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, questions, quiz.QuestionCount)
}

func TestCreateInsufficientFundsRollsBack(t *testing.T) {
	svc, w, db := newTestService(t)
	ctx := context.Background()
	seedWallet(t, w, "owner-1", 5)

	_, err := svc.Create(ctx, createRequest("owner-1"))
	require.Error(t, err)

	var campaigns, questions int64
	require.NoError(t, db.Model(&Campaign{}).Count(&campaigns).Error)
	require.NoError(t, db.Model(&quiz.Question{}).Count(&questions).Error)
	require.Zero(t, campaigns)
	require.Zero(t, questions)

	balance, err := w.GetBalance(ctx, "owner-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(5)))
}

func TestCreateValidation(t *testing.T) {
	svc, w, _ := newTestService(t)
	ctx := context.Background()
	seedWallet(t, w, "owner-1", 100)

	req := createRequest("owner-1")
	req.Payout = decimal.NewFromFloat(0.0001)
	_, err := svc.Create(ctx, req)
	require.Error(t, err)

	req = createRequest("owner-1")
	req.WatchDuration = 37
	_, err = svc.Create(ctx, req)
	require.Error(t, err)

	req = createRequest("owner-1")
	req.URL = "not-a-url"
	_, err = svc.Create(ctx, req)
	require.Error(t, err)

	req = createRequest("owner-1")
	req.Questions = req.Questions[:3]
	_, err = svc.Create(ctx, req)
	require.Error(t, err)
}

func TestDeleteRefundsUnservedCompletions(t *testing.T) {
	svc, w, db := newTestService(t)
	ctx := context.Background()
	seedWallet(t, w, "owner-1", 100)

	c, err := svc.Create(ctx, createRequest("owner-1"))
	require.NoError(t, err)

	// One completion consumed; nine remain refundable.
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.IncrementServed(ctx, tx, c.ID)
	}))

	require.NoError(t, svc.Delete(ctx, "owner-1", c.ID))

	balance, err := w.GetBalance(ctx, "owner-1")
	require.NoError(t, err)
	require.True(t, balance.Available.Equal(decimal.NewFromFloat(99)), "got %s", balance.Available)

	_, err = svc.Get(ctx, c.ID)
	require.Error(t, err)

	var questions int64
	require.NoError(t, db.Model(&quiz.Question{}).Count(&questions).Error)
	require.Zero(t, questions)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	svc, w, _ := newTestService(t)
	ctx := context.Background()
	seedWallet(t, w, "owner-1", 100)

	c, err := svc.Create(ctx, createRequest("owner-1"))
	require.NoError(t, err)

	require.Error(t, svc.Delete(ctx, "intruder", c.ID))

	_, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)
}

func TestCandidatesFiltering(t *testing.T) {
	svc, w, _ := newTestService(t)
	ctx := context.Background()
	seedWallet(t, w, "owner-1", 100)
	seedWallet(t, w, "owner-2", 100)

	mine, err := svc.Create(ctx, createRequest("owner-1"))
	require.NoError(t, err)
	other, err := svc.Create(ctx, createRequest("owner-2"))
	require.NoError(t, err)
	pausedReq := createRequest("owner-2")
	paused, err := svc.Create(ctx, pausedReq)
	require.NoError(t, err)
	_, err = svc.Pause(ctx, "owner-2", paused.ID)
	require.NoError(t, err)

	candidates, err := svc.Candidates(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, other.ID, candidates[0].ID)
	require.NotEqual(t, mine.ID, candidates[0].ID)
}

func TestIncrementServedGuardAndFinish(t *testing.T) {
	svc, w, db := newTestService(t)
	ctx := context.Background()
	seedWallet(t, w, "owner-1", 100)

	req := createRequest("owner-1")
	req.Total = 1
	c, err := svc.Create(ctx, req)
	require.NoError(t, err)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.IncrementServed(ctx, tx, c.ID)
	}))

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Served)
	require.True(t, got.Finished)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.IncrementServed(ctx, tx, c.ID)
	})
	require.Error(t, err)
}

func TestValidateURL(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.ValidateURL(ctx, "user-1", "10.0.0.1", "https://example.com"))
	require.Error(t, svc.ValidateURL(ctx, "user-1", "10.0.0.1", "ftp://example.com"))
	require.Error(t, svc.ValidateURL(ctx, "user-1", "10.0.0.1", "example.com"))
}
