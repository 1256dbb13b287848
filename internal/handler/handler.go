// Package handler содержит HTTP-обработчики API сервиса juice-shop.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/giannisgkountras/juice-shop/internal/captcha"
	"github.com/giannisgkountras/juice-shop/internal/export"
	"github.com/giannisgkountras/juice-shop/internal/middleware"
	"github.com/giannisgkountras/juice-shop/internal/model"
	"github.com/giannisgkountras/juice-shop/internal/repository"
	"github.com/giannisgkountras/juice-shop/internal/service"
	"github.com/giannisgkountras/juice-shop/internal/validation"
)

// wrongAnswerMessage — текст ответа при неверном ответе на CAPTCHA.
const wrongAnswerMessage = "Wrong answer to CAPTCHA. Please try again."

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetBasketID(ctx context.Context, userID int64) (int64, error)
	AddBasketItem(ctx context.Context, userID, basketID, productID, quantity int64) (int64, error)
	CheckoutBasket(ctx context.Context, userID, basketID int64) (string, error)
	CreateReview(ctx context.Context, userID, productID int64, message string) (int64, error)
	LikeReview(ctx context.Context, userID, reviewID int64) error
	IssueChallenge(ctx context.Context, userID int64) (captcha.Challenge, error)
	ExportUserData(ctx context.Context, userID int64, format export.Code, answer string) (*service.ExportResult, error)
}

// Handler реализует HTTP-обработчики API сервиса juice-shop.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidEmail(req.Email) || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err := h.service.RegisterUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type authenticationResponse struct {
	Token string `json:"token"`
	BID   int64  `json:"bid"`
	Umail string `json:"umail"`
}

type loginResponse struct {
	Authentication authenticationResponse `json:"authentication"`
}

// Login выполняет аутентификацию пользователя и выдаёт bearer-токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token, err := h.authMiddleware.IssueToken(u.ID)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err), zap.Int64("userID", u.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	basketID, err := h.service.GetBasketID(r.Context(), u.ID)
	if err != nil && !errors.Is(err, repository.ErrBasketNotFound) {
		h.logger.Error("get basket error", zap.Error(err), zap.Int64("userID", u.ID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := loginResponse{
		Authentication: authenticationResponse{
			Token: token,
			BID:   basketID,
			Umail: u.Email,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type captchaResponse struct {
	Image  string `json:"image"`
	Answer string `json:"answer"`
}

// ImageCaptcha выдаёт CAPTCHA-задание для текущей сессии пользователя.
func (h *Handler) ImageCaptcha(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ch, err := h.service.IssueChallenge(r.Context(), userID)
	if err != nil {
		h.logger.Error("issue challenge error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(captchaResponse{Image: ch.Expression, Answer: ch.Answer}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type dataExportRequest struct {
	Format export.Code `json:"format"`
	Answer string      `json:"answer"`
}

type dataExportResponse struct {
	Confirmation string `json:"confirmation"`
	UserData     string `json:"userData"`
}

// DataExport выгружает персональные данные текущего пользователя.
func (h *Handler) DataExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req dataExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.ExportUserData(r.Context(), userID, req.Format, req.Answer)
	if err != nil {
		if errors.Is(err, service.ErrWrongAnswer) {
			http.Error(w, wrongAnswerMessage, http.StatusUnauthorized)
			return
		}
		if errors.Is(err, export.ErrUnsupportedFormat) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Error("data export error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(dataExportResponse{
		Confirmation: res.Confirmation,
		UserData:     res.UserData,
	}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type checkoutResponse struct {
	OrderConfirmation string `json:"orderConfirmation"`
}

// Checkout оформляет заказ из указанной корзины текущего пользователя.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	basketID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := h.service.CheckoutBasket(r.Context(), userID, basketID)
	if err != nil {
		if errors.Is(err, repository.ErrBasketNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		if errors.Is(err, repository.ErrBasketEmpty) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Error("checkout error", zap.Error(err), zap.Int64("userID", userID), zap.Int64("basketID", basketID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(checkoutResponse{OrderConfirmation: orderID}); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type basketItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// AddBasketItem добавляет товар в указанную корзину текущего пользователя.
func (h *Handler) AddBasketItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	basketID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req basketItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ProductID <= 0 || req.Quantity <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err = h.service.AddBasketItem(r.Context(), userID, basketID, req.ProductID, req.Quantity)
	if err != nil {
		if errors.Is(err, repository.ErrBasketNotFound) || errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("add basket item error", zap.Error(err), zap.Int64("userID", userID), zap.Int64("basketID", basketID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type reviewRequest struct {
	Message string `json:"message"`
}

// CreateReview создаёт отзыв текущего пользователя об указанном товаре.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Message == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	_, err = h.service.CreateReview(r.Context(), userID, productID, req.Message)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("create review error", zap.Error(err), zap.Int64("userID", userID), zap.Int64("productID", productID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// LikeReview отмечает отзыв как понравившийся текущему пользователю.
func (h *Handler) LikeReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	reviewID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.LikeReview(r.Context(), userID, reviewID); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("like review error", zap.Error(err), zap.Int64("userID", userID), zap.Int64("reviewID", reviewID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
