// Package model содержит доменные сущности магазина juice-shop.
package model

import "time"

// User представляет зарегистрированного пользователя магазина.
type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Product описывает товар каталога. Цена хранится в центах.
type Product struct {
	ID          int64
	Name        string
	PriceCents  int64
	BonusPoints int64
	CreatedAt   time.Time
}

// BasketItem описывает позицию корзины пользователя.
type BasketItem struct {
	ID        int64
	BasketID  int64
	ProductID int64
	Quantity  int64
	CreatedAt time.Time
}

// OrderLine описывает позицию заказа. Имя и цена товара копируются
// в момент оформления и не зависят от дальнейших изменений каталога.
type OrderLine struct {
	ProductName string
	PriceCents  int64
	Quantity    int64
	TotalCents  int64
	Bonus       int64
}

// Order описывает оформленный заказ пользователя.
type Order struct {
	ID         string
	UserID     int64
	TotalCents int64
	Bonus      int64
	Lines      []OrderLine
	CreatedAt  time.Time
}

// Review описывает отзыв пользователя о товаре.
type Review struct {
	ID        int64
	Author    string
	ProductID int64
	Message   string
	LikedBy   []string
	CreatedAt time.Time
}
