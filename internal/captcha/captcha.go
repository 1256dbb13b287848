// Package captcha содержит генерацию арифметических CAPTCHA-заданий
// и хранилище ожидаемых ответов с одноразовым использованием.
package captcha

import (
	"math/rand/v2"
	"strconv"
)

// Challenge описывает выданное CAPTCHA-задание: текст выражения и ожидаемый ответ.
type Challenge struct {
	Expression string
	Answer     string
}

var operators = []string{"+", "-", "*"}

// New генерирует новое арифметическое задание из трёх операндов.
func New() Challenge {
	a := rand.IntN(10) + 1
	b := rand.IntN(10) + 1
	c := rand.IntN(10) + 1
	op1 := operators[rand.IntN(len(operators))]
	op2 := operators[rand.IntN(len(operators))]

	expr := strconv.Itoa(a) + op1 + strconv.Itoa(b) + op2 + strconv.Itoa(c)

	return Challenge{
		Expression: expr,
		Answer:     strconv.Itoa(evaluate(a, op1, b, op2, c)),
	}
}

// evaluate вычисляет значение выражения с учётом приоритета умножения.
func evaluate(a int, op1 string, b int, op2 string, c int) int {
	if op1 == "*" && op2 != "*" {
		return apply(a*b, op2, c)
	}
	if op2 == "*" {
		return apply(a, op1, b*c)
	}
	return apply(apply(a, op1, b), op2, c)
}

func apply(x int, op string, y int) int {
	switch op {
	case "+":
		return x + y
	case "-":
		return x - y
	default:
		return x * y
	}
}
