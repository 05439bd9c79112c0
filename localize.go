package ugibdd

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

const (
	unknownErrorText = "Неизвестная ошибка"
	defaultErrorText = "Произошла ошибка"
)

type localized struct {
	fragment string
	message  string
}

// messages is matched in order; the first fragment found in the raw text wins.
var messages = []localized{
	// Auth API
	{"Invalid login credentials", "Неверный логин или пароль"},
	{"Email not confirmed", "Email не подтвержден"},
	{"User already registered", "Пользователь уже зарегистрирован"},
	{"Password should be at least 6 characters", "Пароль должен содержать минимум 6 символов"},

	// Database
	{"duplicate key value violates unique constraint", "Запись с такими данными уже существует"},
	{"violates foreign key constraint", "Нарушение целостности данных"},
	{"could not find user", "Пользователь не найден"},

	// Tokens
	{"JWT expired", "Сессия истекла, выполните вход заново"},
	{"Invalid JWT", "Недействительный токен авторизации"},
	{"auth/invalid-email", "Некорректный email"},
	{"auth/user-not-found", "Пользователь не найден"},
	{"auth/wrong-password", "Неверный пароль"},

	// Network
	{"Failed to fetch", "Ошибка соединения с сервером"},
	{"Network request failed", "Ошибка сети"},
	{"timeout", "Превышено время ожидания ответа от сервера"},

	// Application
	{"Admin session not found", "Сессия администратора не найдена"},
	{"Session not found", "Сессия не найдена"},
	{"Not authorized", "Нет прав для выполнения операции"},
	{"permission denied", "Нет прав для выполнения операции"},
	{"session expired", "Сессия истекла, выполните вход заново"},
	{"not authenticated", "Требуется вход в систему"},
	{"cannot delete own account", "Нельзя удалить собственную учетную запись"},
}

// MessageOf extracts the raw text of err.
func MessageOf(err error) string {
	if err == nil {
		return unknownErrorText
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return err.Error()
}

// Localize maps err to a user-facing message.
func Localize(err error, fallback string) string {
	if err == nil {
		return unknownErrorText
	}
	return LocalizeText(MessageOf(err), fallback)
}

// LocalizeText maps raw error text to a user-facing message. Unknown text is
// returned as is, empty text yields fallback.
func LocalizeText(text, fallback string) string {
	if fallback == "" {
		fallback = defaultErrorText
	}
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	fold := cases.Fold()
	folded := fold.String(text)
	for _, m := range messages {
		if strings.Contains(folded, fold.String(m.fragment)) {
			return m.message
		}
	}
	return text
}
