// Package service реализует бизнес-логику сервиса juice-shop.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/giannisgkountras/juice-shop/internal/captcha"
	"github.com/giannisgkountras/juice-shop/internal/export"
	"github.com/giannisgkountras/juice-shop/internal/model"
)

// exportConfirmation — текст подтверждения, возвращаемый клиенту при успешной выгрузке.
const exportConfirmation = "Your data export will open in a new Browser window."

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWrongAnswer возвращается при неверном или отсутствующем ответе на CAPTCHA.
	ErrWrongAnswer = errors.New("wrong answer to captcha")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email, username string, passwordHash []byte) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetBasketIDByUser(ctx context.Context, userID int64) (int64, error)
	AddBasketItem(ctx context.Context, userID, basketID, productID, quantity int64) (int64, error)
	CheckoutBasket(ctx context.Context, userID, basketID int64) (string, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetReviewsByAuthor(ctx context.Context, userID int64) ([]model.Review, error)
	CreateReview(ctx context.Context, userID, productID int64, message string) (int64, error)
	LikeReview(ctx context.Context, userID, reviewID int64) error
	EnsureUser(ctx context.Context, email, username string, passwordHash []byte) (int64, error)
}

// ChallengeStore описывает контракт хранилища CAPTCHA-заданий.
type ChallengeStore interface {
	Issue(ctx context.Context, sessionKey, answer string) error
	Verify(ctx context.Context, sessionKey, answer string) (captcha.VerifyResult, error)
}

// ExportResult содержит результат выгрузки персональных данных.
type ExportResult struct {
	Confirmation string
	UserData     string
}

// Service содержит бизнес-логику сервиса juice-shop.
type Service struct {
	repo       Repository
	challenges ChallengeStore
	aggregator *export.Aggregator
}

// NewService создаёт новый сервис с указанным репозиторием и хранилищем CAPTCHA.
func NewService(repo Repository, challenges ChallengeStore) *Service {
	return &Service{
		repo:       repo,
		challenges: challenges,
		aggregator: export.NewAggregator(repo),
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, email, "", hash)
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetBasketID возвращает идентификатор корзины пользователя.
func (s *Service) GetBasketID(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetBasketIDByUser(ctx, userID)
}

// AddBasketItem добавляет товар в корзину пользователя.
func (s *Service) AddBasketItem(ctx context.Context, userID, basketID, productID, quantity int64) (int64, error) {
	return s.repo.AddBasketItem(ctx, userID, basketID, productID, quantity)
}

// CheckoutBasket оформляет заказ из корзины пользователя и возвращает номер заказа.
func (s *Service) CheckoutBasket(ctx context.Context, userID, basketID int64) (string, error) {
	return s.repo.CheckoutBasket(ctx, userID, basketID)
}

// CreateReview создаёт отзыв текущего пользователя о товаре.
func (s *Service) CreateReview(ctx context.Context, userID, productID int64, message string) (int64, error) {
	return s.repo.CreateReview(ctx, userID, productID, message)
}

// LikeReview отмечает отзыв как понравившийся текущему пользователю.
func (s *Service) LikeReview(ctx context.Context, userID, reviewID int64) error {
	return s.repo.LikeReview(ctx, userID, reviewID)
}

// IssueChallenge генерирует CAPTCHA-задание для сессии пользователя и
// сохраняет ожидаемый ответ. Новое задание заменяет предыдущее.
func (s *Service) IssueChallenge(ctx context.Context, userID int64) (captcha.Challenge, error) {
	ch := captcha.New()

	if err := s.challenges.Issue(ctx, sessionKey(userID), ch.Answer); err != nil {
		return captcha.Challenge{}, fmt.Errorf("issue challenge: %w", err)
	}

	return ch, nil
}

// ExportUserData выгружает персональные данные пользователя. Если для сессии
// выдано CAPTCHA-задание, ответ проверяется до обращения к данным: неверный
// или отсутствующий ответ отклоняет запрос, ничего не выгружая. Верный ответ
// гасит задание. Снимок собирается заново при каждом вызове и не кешируется.
func (s *Service) ExportUserData(ctx context.Context, userID int64, format export.Code, answer string) (*ExportResult, error) {
	res, err := s.challenges.Verify(ctx, sessionKey(userID), answer)
	if err != nil {
		return nil, fmt.Errorf("verify challenge: %w", err)
	}
	if res == captcha.VerifyMismatch {
		return nil, ErrWrongAnswer
	}

	snapshot, err := s.aggregator.Aggregate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("aggregate user data: %w", err)
	}

	payload, err := export.Format(snapshot, format)
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		Confirmation: exportConfirmation,
		UserData:     payload,
	}, nil
}

// seedAccount описывает учётную запись, создаваемую при старте сервиса.
type seedAccount struct {
	email    string
	username string
	password string
}

// SeedAccounts создаёт стандартные учётные записи магазина, если их ещё нет.
// Домен подставляется из конфигурации.
func (s *Service) SeedAccounts(ctx context.Context, domain string) error {
	accounts := []seedAccount{
		{email: "bjoern.kimminich@gmail.com", username: "bkimminich", password: "bW9jLmxpYW1nQGhjaW5pbW1pay5ucmVvamI="},
		{email: "amy@" + domain, username: "", password: "K1f....................."},
		{email: "jim@" + domain, username: "", password: "ncc-1701"},
	}

	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash seed password: %w", err)
		}
		if _, err := s.repo.EnsureUser(ctx, a.email, a.username, hash); err != nil {
			return fmt.Errorf("seed account %s: %w", a.email, err)
		}
	}

	return nil
}

func sessionKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
