package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/giannisgkountras/juice-shop/internal/captcha"
	"github.com/giannisgkountras/juice-shop/internal/export"
	"github.com/giannisgkountras/juice-shop/internal/model"
)

type stubRepo struct {
	user    *model.User
	userErr error

	orders    []model.Order
	ordersErr error

	reviews    []model.Review
	reviewsErr error

	basketID  int64
	basketErr error

	checkoutOrderID string
	checkoutErr     error

	ensuredEmails []string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, email, username string, passwordHash []byte) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetBasketIDByUser(ctx context.Context, userID int64) (int64, error) {
	return s.basketID, s.basketErr
}

func (s *stubRepo) AddBasketItem(ctx context.Context, userID, basketID, productID, quantity int64) (int64, error) {
	return 1, nil
}

func (s *stubRepo) CheckoutBasket(ctx context.Context, userID, basketID int64) (string, error) {
	return s.checkoutOrderID, s.checkoutErr
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubRepo) GetReviewsByAuthor(ctx context.Context, userID int64) ([]model.Review, error) {
	return s.reviews, s.reviewsErr
}

func (s *stubRepo) CreateReview(ctx context.Context, userID, productID int64, message string) (int64, error) {
	return 1, nil
}

func (s *stubRepo) LikeReview(ctx context.Context, userID, reviewID int64) error {
	return nil
}

func (s *stubRepo) EnsureUser(ctx context.Context, email, username string, passwordHash []byte) (int64, error) {
	s.ensuredEmails = append(s.ensuredEmails, email)
	return int64(len(s.ensuredEmails)), nil
}

type stubChallenges struct {
	issuedKey    string
	issuedAnswer string
	issueErr     error

	verifyResult captcha.VerifyResult
	verifyErr    error
	verifiedWith string
}

func (s *stubChallenges) Issue(ctx context.Context, sessionKey, answer string) error {
	s.issuedKey = sessionKey
	s.issuedAnswer = answer
	return s.issueErr
}

func (s *stubChallenges) Verify(ctx context.Context, sessionKey, answer string) (captcha.VerifyResult, error) {
	s.verifiedWith = answer
	return s.verifyResult, s.verifyErr
}

func TestAuthenticateUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("ncc-1701"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	repo := &stubRepo{
		user: &model.User{ID: 3, Email: "jim@juice-sh.op", PasswordHash: hash},
	}
	svc := NewService(repo, &stubChallenges{})

	u, err := svc.AuthenticateUser(context.Background(), "jim@juice-sh.op", "ncc-1701")
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}
	if u.ID != 3 {
		t.Fatalf("user id = %d, want 3", u.ID)
	}

	_, err = svc.AuthenticateUser(context.Background(), "jim@juice-sh.op", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestIssueChallenge(t *testing.T) {
	store := &stubChallenges{}
	svc := NewService(&stubRepo{}, store)

	ch, err := svc.IssueChallenge(context.Background(), 7)
	if err != nil {
		t.Fatalf("IssueChallenge error: %v", err)
	}

	if ch.Expression == "" || ch.Answer == "" {
		t.Fatalf("empty challenge: %+v", ch)
	}
	if store.issuedKey != "user:7" {
		t.Fatalf("session key = %q, want user:7", store.issuedKey)
	}
	if store.issuedAnswer != ch.Answer {
		t.Fatalf("stored answer = %q, want %q", store.issuedAnswer, ch.Answer)
	}
}

func TestExportUserData_NoChallengePending(t *testing.T) {
	repo := &stubRepo{
		user: &model.User{ID: 1, Email: "bjoern.kimminich@gmail.com", Username: "bkimminich"},
	}
	svc := NewService(repo, &stubChallenges{verifyResult: captcha.VerifyNoChallenge})

	res, err := svc.ExportUserData(context.Background(), 1, export.CodeJSON, "")
	if err != nil {
		t.Fatalf("ExportUserData error: %v", err)
	}

	if res.Confirmation != "Your data export will open in a new Browser window." {
		t.Fatalf("confirmation = %q", res.Confirmation)
	}

	var parsed struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal([]byte(res.UserData), &parsed); err != nil {
		t.Fatalf("unmarshal userData: %v", err)
	}
	if parsed.Username != "bkimminich" {
		t.Fatalf("username = %q, want bkimminich", parsed.Username)
	}
	if parsed.Email != "bjoern.kimminich@gmail.com" {
		t.Fatalf("email = %q", parsed.Email)
	}
}

func TestExportUserData_WrongAnswer(t *testing.T) {
	repo := &stubRepo{
		user: &model.User{ID: 1, Email: "bjoern.kimminich@gmail.com", Username: "bkimminich"},
	}
	svc := NewService(repo, &stubChallenges{verifyResult: captcha.VerifyMismatch})

	res, err := svc.ExportUserData(context.Background(), 1, export.CodeJSON, "AAAAAA")
	if !errors.Is(err, ErrWrongAnswer) {
		t.Fatalf("error = %v, want ErrWrongAnswer", err)
	}
	if res != nil {
		t.Fatalf("result must be nil on rejection, got %+v", res)
	}
}

func TestExportUserData_CorrectAnswer(t *testing.T) {
	repo := &stubRepo{
		user: &model.User{ID: 3, Email: "jim@juice-sh.op"},
		reviews: []model.Review{
			{ID: 1, Author: "jim@juice-sh.op", ProductID: 20, Message: "Looks so much better on my uniform than the boring Starfleet symbol."},
			{ID: 2, Author: "jim@juice-sh.op", ProductID: 22, Message: "Fresh out of a replicator."},
		},
	}
	store := &stubChallenges{verifyResult: captcha.VerifyConsumed}
	svc := NewService(repo, store)

	res, err := svc.ExportUserData(context.Background(), 3, export.CodeJSON, "12")
	if err != nil {
		t.Fatalf("ExportUserData error: %v", err)
	}
	if store.verifiedWith != "12" {
		t.Fatalf("verified answer = %q, want 12", store.verifiedWith)
	}

	var parsed struct {
		Reviews []struct {
			ProductID  int64    `json:"productId"`
			LikesCount int      `json:"likesCount"`
			LikedBy    []string `json:"likedBy"`
		} `json:"reviews"`
	}
	if err := json.Unmarshal([]byte(res.UserData), &parsed); err != nil {
		t.Fatalf("unmarshal userData: %v", err)
	}
	if len(parsed.Reviews) != 2 {
		t.Fatalf("reviews count = %d, want 2", len(parsed.Reviews))
	}
	if parsed.Reviews[0].ProductID != 20 || parsed.Reviews[1].ProductID != 22 {
		t.Fatalf("review order not preserved: %+v", parsed.Reviews)
	}
	for _, rv := range parsed.Reviews {
		if rv.LikesCount != 0 {
			t.Fatalf("likesCount = %d, want 0", rv.LikesCount)
		}
		if rv.LikedBy == nil || len(rv.LikedBy) != 0 {
			t.Fatalf("likedBy = %#v, want empty list", rv.LikedBy)
		}
	}
}

func TestExportUserData_UnsupportedFormat(t *testing.T) {
	repo := &stubRepo{
		user: &model.User{ID: 1, Email: "bjoern.kimminich@gmail.com"},
	}
	svc := NewService(repo, &stubChallenges{verifyResult: captcha.VerifyNoChallenge})

	_, err := svc.ExportUserData(context.Background(), 1, export.Code("99"), "")
	if !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExportUserData_AggregationFailure(t *testing.T) {
	repo := &stubRepo{
		user:      &model.User{ID: 1, Email: "bjoern.kimminich@gmail.com"},
		ordersErr: errors.New("read failed"),
	}
	svc := NewService(repo, &stubChallenges{verifyResult: captcha.VerifyNoChallenge})

	res, err := svc.ExportUserData(context.Background(), 1, export.CodeJSON, "")
	if err == nil {
		t.Fatalf("expected error when aggregation fails")
	}
	if res != nil {
		t.Fatalf("no partial result must be returned, got %+v", res)
	}
}

func TestSeedAccounts(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, &stubChallenges{})

	if err := svc.SeedAccounts(context.Background(), "juice-sh.op"); err != nil {
		t.Fatalf("SeedAccounts error: %v", err)
	}

	want := []string{"bjoern.kimminich@gmail.com", "amy@juice-sh.op", "jim@juice-sh.op"}
	if len(repo.ensuredEmails) != len(want) {
		t.Fatalf("seeded %d accounts, want %d", len(repo.ensuredEmails), len(want))
	}
	for i, email := range want {
		if repo.ensuredEmails[i] != email {
			t.Fatalf("seeded email[%d] = %q, want %q", i, repo.ensuredEmails[i], email)
		}
	}
}
