package audit

import (
	"strings"
)

const maskChar = "*"

// sensitiveFields перечисляет имена полей, значения которых маскируются полностью.
// Сравнение по вхождению: "monday_access_token" попадает под "token".
var sensitiveFields = map[string]bool{
	"token":         true,
	"secret":        true,
	"password":      true,
	"password_hash": true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
	"bearer":        true,
	"credential":    true,
	"credentials":   true,
	"csrf":          true,
	"private_key":   true,
}

// IsSensitiveField сообщает, указывает ли имя поля на секрет.
func IsSensitiveField(fieldName string) bool {
	lower := strings.ToLower(fieldName)

	if sensitiveFields[lower] {
		return true
	}

	for keyword := range sensitiveFields {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	return false
}

// MaskValue маскирует значение целиком. Длина маски ограничена,
// чтобы не раскрывать длину исходного значения.
func MaskValue(value string) string {
	if value == "" {
		return ""
	}
	n := len(value)
	if n > 8 {
		n = 8
	}
	return strings.Repeat(maskChar, n)
}

// MaskEmail маскирует email частично: первые два символа локальной
// части и домен остаются читаемыми, чтобы запись в журнале можно было
// сопоставить с клиентом без раскрытия адреса.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskValue(email)
	}

	local := email[:at]
	domain := email[at:]

	show := 2
	if len(local) < show {
		show = len(local)
	}
	return local[:show] + strings.Repeat(maskChar, 3) + domain
}

// MaskPhone маскирует телефон, оставляя последние две цифры.
func MaskPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 2 {
		return MaskValue(phone)
	}

	var b strings.Builder
	seen := 0
	for _, r := range phone {
		isDigit := r >= '0' && r <= '9'
		if isDigit {
			seen++
		}
		if isDigit && seen <= digits-2 {
			b.WriteString(maskChar)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isEmailField и isPhoneField выделяют персональные данные,
// маскируемые частично, а не целиком.
func isEmailField(fieldName string) bool {
	return strings.Contains(strings.ToLower(fieldName), "email")
}

func isPhoneField(fieldName string) bool {
	return strings.Contains(strings.ToLower(fieldName), "phone")
}

// RedactMap возвращает копию карты с замаскированными чувствительными
// значениями. Вложенные карты обрабатываются рекурсивно. Исходная
// карта не изменяется.
func RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	result := make(map[string]any, len(m))

	for key, value := range m {
		switch {
		case IsSensitiveField(key):
			if strVal, ok := value.(string); ok {
				result[key] = MaskValue(strVal)
			} else {
				result[key] = strings.Repeat(maskChar, 8)
			}
		case isEmailField(key):
			if strVal, ok := value.(string); ok {
				result[key] = MaskEmail(strVal)
			} else {
				result[key] = value
			}
		case isPhoneField(key):
			if strVal, ok := value.(string); ok {
				result[key] = MaskPhone(strVal)
			} else {
				result[key] = value
			}
		default:
			if nested, ok := value.(map[string]any); ok {
				result[key] = RedactMap(nested)
			} else {
				result[key] = value
			}
		}
	}

	return result
}
