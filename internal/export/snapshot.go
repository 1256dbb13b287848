// Package export собирает персональные данные пользователя в выгружаемый
// снимок и сериализует его в запрошенный формат.
package export

import (
	"context"
	"fmt"

	"github.com/giannisgkountras/juice-shop/internal/model"
)

// Snapshot — снимок персональных данных пользователя на момент запроса.
// Снимок собирается заново для каждого запроса и нигде не сохраняется.
type Snapshot struct {
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Orders   []OrderRecord  `json:"orders"`
	Reviews  []ReviewRecord `json:"reviews"`
}

// OrderRecord описывает заказ в составе снимка. Цены — в валюте с двумя знаками.
type OrderRecord struct {
	ID         string          `json:"id"`
	TotalPrice float64         `json:"totalPrice"`
	Bonus      int64           `json:"bonus"`
	Products   []ProductRecord `json:"products"`
}

// ProductRecord описывает позицию заказа: имя и цена зафиксированы
// на момент оформления заказа.
type ProductRecord struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Total    float64 `json:"total"`
	Bonus    int64   `json:"bonus"`
}

// ReviewRecord описывает отзыв в составе снимка.
type ReviewRecord struct {
	Message    string   `json:"message"`
	Author     string   `json:"author"`
	ProductID  int64    `json:"productId"`
	LikesCount int      `json:"likesCount"`
	LikedBy    []string `json:"likedBy"`
}

// Repository описывает контракт чтения данных, используемый агрегатором.
type Repository interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	GetReviewsByAuthor(ctx context.Context, userID int64) ([]model.Review, error)
}

// Aggregator собирает снимок данных пользователя из хранилища.
type Aggregator struct {
	repo Repository
}

// NewAggregator создаёт агрегатор поверх указанного хранилища.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Aggregate читает профиль, заказы и отзывы пользователя и возвращает снимок.
// Для пользователя без заказов и отзывов возвращаются пустые списки.
// Чтение не изменяет данные и не держит блокировок.
func (a *Aggregator) Aggregate(ctx context.Context, userID int64) (*Snapshot, error) {
	u, err := a.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	orders, err := a.repo.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}

	reviews, err := a.repo.GetReviewsByAuthor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get reviews: %w", err)
	}

	snapshot := &Snapshot{
		Username: u.Username,
		Email:    u.Email,
		Orders:   make([]OrderRecord, 0, len(orders)),
		Reviews:  make([]ReviewRecord, 0, len(reviews)),
	}

	for _, o := range orders {
		rec := OrderRecord{
			ID:         o.ID,
			TotalPrice: centsToPrice(o.TotalCents),
			Bonus:      o.Bonus,
			Products:   make([]ProductRecord, 0, len(o.Lines)),
		}
		for _, l := range o.Lines {
			rec.Products = append(rec.Products, ProductRecord{
				Name:     l.ProductName,
				Price:    centsToPrice(l.PriceCents),
				Quantity: l.Quantity,
				Total:    centsToPrice(l.TotalCents),
				Bonus:    l.Bonus,
			})
		}
		snapshot.Orders = append(snapshot.Orders, rec)
	}

	for _, rv := range reviews {
		likedBy := rv.LikedBy
		if likedBy == nil {
			likedBy = make([]string, 0)
		}
		snapshot.Reviews = append(snapshot.Reviews, ReviewRecord{
			Message:    rv.Message,
			Author:     rv.Author,
			ProductID:  rv.ProductID,
			LikesCount: len(likedBy),
			LikedBy:    likedBy,
		})
	}

	return snapshot, nil
}

func centsToPrice(cents int64) float64 {
	return float64(cents) / 100
}
