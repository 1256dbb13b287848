package export

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnsupportedFormat возвращается для неизвестного кода формата выгрузки.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Code — код формата выгрузки.
type Code string

// CodeJSON — структурированная JSON-выгрузка.
const CodeJSON Code = "1"

// UnmarshalJSON принимает код формата и как JSON-строку ("1"), и как число (1):
// клиенты используют оба варианта.
func (c *Code) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Code(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Code(n.String())
		return nil
	}

	return fmt.Errorf("invalid format code: %s", string(data))
}

// Format сериализует снимок в указанный формат. Сериализация обратима:
// разбор результата восстанавливает все поля снимка, включая нулевые
// значения и пустые списки.
func Format(snapshot *Snapshot, code Code) (string, error) {
	switch code {
	case CodeJSON:
		data, err := json.Marshal(snapshot)
		if err != nil {
			return "", fmt.Errorf("marshal snapshot: %w", err)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(code))
	}
}
