package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinNameLength                = 2
	MaxNameLength                = 150
	MinApprovalTitleLength       = 3
	MaxApprovalTitleLength       = 200
	MaxApprovalDescriptionLength = 5000
	MaxResponseNotesLength       = 2000
	MaxProjectAddressLength      = 300
	MaxClientNotesLength         = 2000
	MaxCompanyLength             = 150
	MaxPhoneLength               = 30
	MinExpiryDays                = 1
	MaxExpiryDays                = 90
	MinSlugLength                = 2
	MaxSlugLength                = 60
	MaxEmailSubjectLength        = 200
	MaxEmailBodyLength           = 50000
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.TrimSpace(email)
	email = strings.ToLower(email)

	// Базовая проверка формата
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email должен содержать символ @")
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart := parts[0]
	domainPart := parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}

	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	if !strings.Contains(domainPart, ".") {
		return fmt.Errorf("доменная часть email должна содержать точку")
	}

	emailRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !emailRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateClientName проверяет имя клиента.
func ValidateClientName(name string) error {
	if name == "" {
		return fmt.Errorf("имя клиента обязательно")
	}

	name = strings.TrimSpace(name)

	if err := ValidateLength("имя клиента", name, MinNameLength, MaxNameLength); err != nil {
		return err
	}

	return nil
}

// ValidateProjectName проверяет название проекта.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("название проекта обязательно")
	}

	name = strings.TrimSpace(name)

	if err := ValidateLength("название проекта", name, MinNameLength, MaxNameLength); err != nil {
		return err
	}

	return nil
}

// ValidateOrganizationName проверяет название организации.
func ValidateOrganizationName(name string) error {
	if name == "" {
		return fmt.Errorf("название организации обязательно")
	}

	name = strings.TrimSpace(name)

	if err := ValidateLength("название организации", name, MinNameLength, MaxNameLength); err != nil {
		return err
	}

	return nil
}

// ValidateUserName проверяет имя сотрудника.
func ValidateUserName(name string) error {
	if name == "" {
		return fmt.Errorf("имя обязательно")
	}

	name = strings.TrimSpace(name)

	if err := ValidateLength("имя", name, MinNameLength, MaxNameLength); err != nil {
		return err
	}

	return nil
}

// ValidateApprovalTitle проверяет заголовок согласования.
func ValidateApprovalTitle(title string) error {
	if title == "" {
		return fmt.Errorf("заголовок согласования обязателен")
	}

	title = strings.TrimSpace(title)

	if err := ValidateLength("заголовок согласования", title, MinApprovalTitleLength, MaxApprovalTitleLength); err != nil {
		return err
	}

	return nil
}

// ValidateApprovalDescription проверяет описание согласования.
func ValidateApprovalDescription(description *string) error {
	if description != nil && *description != "" {
		desc := strings.TrimSpace(*description)
		if err := ValidateLength("описание согласования", desc, 0, MaxApprovalDescriptionLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateResponseNotes проверяет комментарий клиента к ответу.
// Для решения "changes_requested" комментарий обязателен: без него
// студия не поймёт, что именно менять.
func ValidateResponseNotes(decision string, notes *string) error {
	if decision == "changes_requested" {
		if notes == nil || strings.TrimSpace(*notes) == "" {
			return fmt.Errorf("для запроса правок нужно описать требуемые изменения")
		}
	}
	if notes != nil && *notes != "" {
		n := strings.TrimSpace(*notes)
		if err := ValidateLength("комментарий", n, 0, MaxResponseNotesLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePhone проверяет телефон.
func ValidatePhone(phone *string) error {
	if phone != nil && *phone != "" {
		p := strings.TrimSpace(*phone)

		if err := ValidateLength("телефон", p, 0, MaxPhoneLength); err != nil {
			return err
		}

		phoneRegex := regexp.MustCompile(`^\+?[0-9\s\-().]+$`)
		if !phoneRegex.MatchString(p) {
			return fmt.Errorf("телефон содержит недопустимые символы")
		}
	}
	return nil
}

// ValidateCompany проверяет название компании клиента.
func ValidateCompany(company *string) error {
	if company != nil && *company != "" {
		c := strings.TrimSpace(*company)
		if err := ValidateLength("компания", c, 0, MaxCompanyLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateClientNotes проверяет заметки о клиенте.
func ValidateClientNotes(notes *string) error {
	if notes != nil && *notes != "" {
		n := strings.TrimSpace(*notes)
		if err := ValidateLength("заметки", n, 0, MaxClientNotesLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProjectAddress проверяет адрес объекта.
func ValidateProjectAddress(address *string) error {
	if address != nil && *address != "" {
		a := strings.TrimSpace(*address)
		if err := ValidateLength("адрес объекта", a, 0, MaxProjectAddressLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateExpiryDays проверяет срок действия согласования в днях.
func ValidateExpiryDays(days int) error {
	if days < MinExpiryDays || days > MaxExpiryDays {
		return fmt.Errorf("срок действия должен быть от %d до %d дней", MinExpiryDays, MaxExpiryDays)
	}
	return nil
}

// ValidateSlug проверяет слаг организации: латиница в нижнем регистре,
// цифры и дефис, без дефиса по краям.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("слаг обязателен")
	}

	if err := ValidateLength("слаг", slug, MinSlugLength, MaxSlugLength); err != nil {
		return err
	}

	slugRegex := regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("слаг может содержать только строчные латинские буквы, цифры и дефис")
	}

	return nil
}

// ValidateEmailTemplate проверяет переопределение шаблона письма.
func ValidateEmailTemplate(subject, bodyHTML string) error {
	if err := ValidateNonEmpty("тема письма", subject); err != nil {
		return err
	}
	if err := ValidateLength("тема письма", subject, 0, MaxEmailSubjectLength); err != nil {
		return err
	}
	if err := ValidateNonEmpty("текст письма", bodyHTML); err != nil {
		return err
	}
	if err := ValidateLength("текст письма", bodyHTML, 0, MaxEmailBodyLength); err != nil {
		return err
	}
	return nil
}
