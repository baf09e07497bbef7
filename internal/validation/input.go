package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Константы валидации
const (
	MinUsernameLength        = 3
	MaxUsernameLength        = 30
	MinDisplayNameLength     = 2
	MaxDisplayNameLength     = 100
	MinServiceTitleLength    = 3
	MaxServiceTitleLength    = 200
	MinServiceDescription    = 10
	MaxServiceDescription    = 5000
	MinRequirementsLength    = 10
	MaxRequirementsLength    = 5000
	MinDisputeReasonLength   = 10
	MaxDisputeReasonLength   = 2000
	MaxDeliveryMessageLength = 5000
	MaxCancelReasonLength    = 1000
	MaxResolutionNotesLength = 2000
	MaxBioLength             = 1000
	MinPrice                 = 1.0
	MaxPrice                 = 100000000.0
	MaxDeliveryDays          = 365
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

// ValidateUsername проверяет имя пользователя.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("имя пользователя обязательно")
	}

	username = strings.TrimSpace(username)

	if err := ValidateLength("имя пользователя", username, MinUsernameLength, MaxUsernameLength); err != nil {
		return err
	}

	usernameRegex := regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("имя пользователя может содержать только буквы, цифры и подчеркивание")
	}

	if len(username) > 0 && unicode.IsDigit(rune(username[0])) {
		return fmt.Errorf("имя пользователя не может начинаться с цифры")
	}

	return nil
}

// ValidateDisplayName проверяет отображаемое имя.
func ValidateDisplayName(displayName string) error {
	if displayName == "" {
		return fmt.Errorf("отображаемое имя обязательно")
	}

	displayName = strings.TrimSpace(displayName)

	if err := ValidateLength("отображаемое имя", displayName, MinDisplayNameLength, MaxDisplayNameLength); err != nil {
		return err
	}

	displayNameRegex := regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ0-9\s\-_.,!?()]+$`)
	if !displayNameRegex.MatchString(displayName) {
		return fmt.Errorf("отображаемое имя содержит недопустимые символы")
	}

	return nil
}

// ValidateServiceTitle проверяет название услуги.
func ValidateServiceTitle(title string) error {
	if title == "" {
		return fmt.Errorf("название услуги обязательно")
	}

	return ValidateLength("название услуги", strings.TrimSpace(title), MinServiceTitleLength, MaxServiceTitleLength)
}

// ValidateServiceDescription проверяет описание услуги.
func ValidateServiceDescription(description string) error {
	if description == "" {
		return fmt.Errorf("описание услуги обязательно")
	}

	return ValidateLength("описание услуги", strings.TrimSpace(description), MinServiceDescription, MaxServiceDescription)
}

// ValidateRequirements проверяет требования клиента к заказу.
func ValidateRequirements(requirements string) error {
	if requirements == "" {
		return fmt.Errorf("требования к заказу обязательны")
	}

	return ValidateLength("требования к заказу", strings.TrimSpace(requirements), MinRequirementsLength, MaxRequirementsLength)
}

// ValidateDisputeReason проверяет причину открытия спора.
func ValidateDisputeReason(reason string) error {
	if reason == "" {
		return fmt.Errorf("причина спора обязательна")
	}

	return ValidateLength("причина спора", strings.TrimSpace(reason), MinDisputeReasonLength, MaxDisputeReasonLength)
}

// ValidateDeliveryMessage проверяет сообщение при сдаче работы.
func ValidateDeliveryMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("сообщение о сдаче работы не может быть пустым")
	}

	return ValidateLength("сообщение о сдаче работы", strings.TrimSpace(message), 1, MaxDeliveryMessageLength)
}

// ValidatePrice проверяет цену услуги.
func ValidatePrice(price float64) error {
	if price < MinPrice {
		return fmt.Errorf("цена должна быть не менее %.0f", MinPrice)
	}
	if price > MaxPrice {
		return fmt.Errorf("цена не может превышать %.0f", MaxPrice)
	}
	return nil
}

// ValidateDeliveryDays проверяет срок выполнения услуги.
func ValidateDeliveryDays(days int) error {
	if days <= 0 {
		return fmt.Errorf("срок выполнения должен быть положительным")
	}
	if days > MaxDeliveryDays {
		return fmt.Errorf("срок выполнения не может превышать %d дней", MaxDeliveryDays)
	}
	return nil
}

// ValidateBio проверяет биографию.
func ValidateBio(bio *string) error {
	if bio != nil && *bio != "" {
		bioStr := strings.TrimSpace(*bio)
		if err := ValidateLength("биография", bioStr, 0, MaxBioLength); err != nil {
			return err
		}
	}
	return nil
}
