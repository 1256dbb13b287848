// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/giannisgkountras/juice-shop/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrBasketNotFound возвращается, если корзина не найдена или принадлежит другому пользователю.
	ErrBasketNotFound = errors.New("basket not found")
	// ErrBasketEmpty возвращается при попытке оформить заказ из пустой корзины.
	ErrBasketEmpty = errors.New("basket is empty")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrReviewNotFound возвращается, если отзыв не найден.
	ErrReviewNotFound = errors.New("review not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках БД: обрывах соединения,
// дедлоках и сбоях сериализации.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
			return err
		}

		if isConnectionError(err) {
			return retry.RetryableError(err)
		}

		return err
	})
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя вместе с пустой корзиной.
func (r *PostgresRepository) CreateUser(ctx context.Context, email, username string, passwordHash []byte) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO users (email, username, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		email, username, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO baskets (user_id) VALUES ($1)`, id); err != nil {
		return 0, fmt.Errorf("create basket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// GetBasketIDByUser возвращает идентификатор корзины пользователя.
func (r *PostgresRepository) GetBasketIDByUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM baskets WHERE user_id = $1 ORDER BY id LIMIT 1`,
		userID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBasketNotFound
		}
		return 0, fmt.Errorf("get basket: %w", err)
	}
	return id, nil
}

// AddBasketItem добавляет товар в корзину пользователя.
func (r *PostgresRepository) AddBasketItem(ctx context.Context, userID, basketID, productID, quantity int64) (int64, error) {
	var ownerID int64
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM baskets WHERE id = $1`,
		basketID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBasketNotFound
		}
		return 0, fmt.Errorf("get basket owner: %w", err)
	}
	if ownerID != userID {
		return 0, ErrBasketNotFound
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO basket_items (basket_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id`,
		basketID, productID, quantity,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("insert basket item: %w", err)
	}

	return id, nil
}

// CheckoutBasket оформляет заказ из корзины пользователя. Имя, цена и бонусные
// баллы товара копируются в позиции заказа на момент оформления, после чего
// корзина очищается.
func (r *PostgresRepository) CheckoutBasket(ctx context.Context, userID, basketID int64) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID int64
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM baskets WHERE id = $1`,
		basketID,
	).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrBasketNotFound
		}
		return "", fmt.Errorf("get basket owner: %w", err)
	}
	if ownerID != userID {
		return "", ErrBasketNotFound
	}

	rows, err := tx.Query(ctx,
		`SELECT p.name, p.price_cents, p.bonus_points, bi.quantity
		 FROM basket_items bi
		 JOIN products p ON p.id = bi.product_id
		 WHERE bi.basket_id = $1
		 ORDER BY bi.created_at, bi.id`,
		basketID,
	)
	if err != nil {
		return "", fmt.Errorf("select basket items: %w", err)
	}

	var lines []model.OrderLine
	for rows.Next() {
		var (
			name        string
			priceCents  int64
			bonusPoints int64
			quantity    int64
		)
		if err := rows.Scan(&name, &priceCents, &bonusPoints, &quantity); err != nil {
			rows.Close()
			return "", fmt.Errorf("scan basket item: %w", err)
		}
		lines = append(lines, model.OrderLine{
			ProductName: name,
			PriceCents:  priceCents,
			Quantity:    quantity,
			TotalCents:  priceCents * quantity,
			Bonus:       bonusPoints * quantity,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}

	if len(lines) == 0 {
		return "", ErrBasketEmpty
	}

	var totalCents, bonus int64
	for _, l := range lines {
		totalCents += l.TotalCents
		bonus += l.Bonus
	}

	orderID := uuid.NewString()

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, user_id, total_cents, bonus) VALUES ($1, $2, $3, $4)`,
		orderID, userID, totalCents, bonus,
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}

	for _, l := range lines {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_lines (order_id, product_name, price_cents, quantity, total_cents, bonus)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			orderID, l.ProductName, l.PriceCents, l.Quantity, l.TotalCents, l.Bonus,
		)
		if err != nil {
			return "", fmt.Errorf("insert order line: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM basket_items WHERE basket_id = $1`, basketID); err != nil {
		return "", fmt.Errorf("clear basket: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}

	return orderID, nil
}

// GetOrdersByUser возвращает заказы пользователя с позициями в порядке создания.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	var orders []model.Order

	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, user_id, total_cents, bonus, created_at
			 FROM orders
			 WHERE user_id = $1
			 ORDER BY created_at, id`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			var o model.Order
			if err := rows.Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Bonus, &o.CreatedAt); err != nil {
				return fmt.Errorf("scan order: %w", err)
			}
			orders = append(orders, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := r.getOrderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func (r *PostgresRepository) getOrderLines(ctx context.Context, orderID string) ([]model.OrderLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT product_name, price_cents, quantity, total_cents, bonus
		 FROM order_lines
		 WHERE order_id = $1
		 ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	var lines []model.OrderLine
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ProductName, &l.PriceCents, &l.Quantity, &l.TotalCents, &l.Bonus); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// CreateReview создаёт отзыв пользователя о товаре.
func (r *PostgresRepository) CreateReview(ctx context.Context, userID, productID int64, message string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (user_id, product_id, message) VALUES ($1, $2, $3) RETURNING id`,
		userID, productID, message,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("insert review: %w", err)
	}
	return id, nil
}

// LikeReview отмечает отзыв как понравившийся пользователю. Повторная отметка
// тем же пользователем не меняет состояние.
func (r *PostgresRepository) LikeReview(ctx context.Context, userID, reviewID int64) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reviews WHERE id = $1)`,
		reviewID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check review: %w", err)
	}
	if !exists {
		return ErrReviewNotFound
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO review_likes (review_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		reviewID, userID,
	)
	if err != nil {
		return fmt.Errorf("insert review like: %w", err)
	}

	return nil
}

// GetReviewsByAuthor возвращает отзывы пользователя в порядке создания вместе
// со списком email отметивших их пользователей.
func (r *PostgresRepository) GetReviewsByAuthor(ctx context.Context, userID int64) ([]model.Review, error) {
	var reviews []model.Review

	err := withRetry(ctx, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx,
			`SELECT rv.id, u.email, rv.product_id, rv.message, rv.created_at
			 FROM reviews rv
			 JOIN users u ON u.id = rv.user_id
			 WHERE rv.user_id = $1
			 ORDER BY rv.created_at, rv.id`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("select reviews: %w", err)
		}
		defer rows.Close()

		reviews = reviews[:0]
		for rows.Next() {
			var rev model.Review
			if err := rows.Scan(&rev.ID, &rev.Author, &rev.ProductID, &rev.Message, &rev.CreatedAt); err != nil {
				return fmt.Errorf("scan review: %w", err)
			}
			reviews = append(reviews, rev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range reviews {
		likedBy, err := r.getReviewLikers(ctx, reviews[i].ID)
		if err != nil {
			return nil, err
		}
		reviews[i].LikedBy = likedBy
	}

	return reviews, nil
}

func (r *PostgresRepository) getReviewLikers(ctx context.Context, reviewID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.email
		 FROM review_likes rl
		 JOIN users u ON u.id = rl.user_id
		 WHERE rl.review_id = $1
		 ORDER BY rl.created_at, u.id`,
		reviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("select review likes: %w", err)
	}
	defer rows.Close()

	likedBy := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan review like: %w", err)
		}
		likedBy = append(likedBy, email)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return likedBy, nil
}

// EnsureUser создаёт пользователя с корзиной, если он ещё не существует,
// и возвращает его идентификатор. Используется для первоначального наполнения.
func (r *PostgresRepository) EnsureUser(ctx context.Context, email, username string, passwordHash []byte) (int64, error) {
	id, err := r.CreateUser(ctx, email, username, passwordHash)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrUserExists) {
		return 0, err
	}

	u, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}
