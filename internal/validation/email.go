// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// IsValidEmail проверяет, что строка похожа на адрес электронной почты:
// непустая локальная часть, один символ @ и домен с точкой.
func IsValidEmail(email string) bool {
	if email == "" {
		return false
	}

	at := strings.Index(email, "@")
	if at <= 0 || at != strings.LastIndex(email, "@") {
		return false
	}

	local := email[:at]
	domain := email[at+1:]

	if strings.ContainsAny(local, " \t") {
		return false
	}

	dot := strings.Index(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}

	return !strings.ContainsAny(domain, " \t")
}
