package ugibdd_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bohemiyan/ugibdd"
	"github.com/stretchr/testify/assert"
)

func TestLocalizeText(t *testing.T) {
	tests := []struct {
		text     string
		fallback string
		want     string
	}{
		{"Invalid login credentials", "", "Неверный логин или пароль"},
		{"invalid LOGIN credentials", "", "Неверный логин или пароль"},
		{`duplicate key value violates unique constraint "employees_nickname_key"`, "", "Запись с такими данными уже существует"},
		{"JWT expired", "", "Сессия истекла, выполните вход заново"},
		{"Admin session not found", "", "Сессия администратора не найдена"},
		{"Session not found", "", "Сессия не найдена"},
		{"something odd happened", "", "something odd happened"},
		{"", "", "Произошла ошибка"},
		{"   ", "Не удалось сохранить", "Не удалось сохранить"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ugibdd.LocalizeText(tt.text, tt.fallback), tt.text)
	}
}

func TestLocalize(t *testing.T) {
	assert.Equal(t, "Неизвестная ошибка", ugibdd.Localize(nil, ""))

	remote := &ugibdd.RemoteError{Status: 409, Code: "23505", Message: "duplicate key value violates unique constraint"}
	wrapped := fmt.Errorf("insert employee: %w", remote)
	assert.Equal(t, "Запись с такими данными уже существует", ugibdd.Localize(wrapped, ""))

	assert.Equal(t, "Нельзя удалить собственную учетную запись", ugibdd.Localize(ugibdd.ErrSelfDelete, ""))
	assert.Equal(t, "plain failure", ugibdd.Localize(errors.New("plain failure"), ""))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "Неизвестная ошибка", ugibdd.MessageOf(nil))
	assert.Equal(t, "JWT expired", ugibdd.MessageOf(fmt.Errorf("select: %w", &ugibdd.RemoteError{Status: 401, Message: "JWT expired"})))
}

func TestRemoteErrorHelpers(t *testing.T) {
	expired := &ugibdd.RemoteError{Status: 400, Message: "JWT expired"}
	assert.True(t, ugibdd.IsSessionExpired(fmt.Errorf("load: %w", expired)))
	assert.True(t, ugibdd.IsSessionExpired(ugibdd.ErrSessionExpired))
	assert.False(t, ugibdd.IsSessionExpired(&ugibdd.RemoteError{Status: 500, Message: "boom"}))

	assert.True(t, ugibdd.IsRemoteNotFound(&ugibdd.RemoteError{Status: 404, Message: "User not found"}))
	assert.False(t, ugibdd.IsRemoteNotFound(ugibdd.ErrNotFound))

	assert.Equal(t, "boom (XX000): details", (&ugibdd.RemoteError{Status: 500, Code: "XX000", Message: "boom", Details: "details"}).Error())
	assert.Equal(t, "Bad Gateway", (&ugibdd.RemoteError{Status: 502}).Error())
}

func TestValidationError(t *testing.T) {
	ve := &ugibdd.ValidationError{}
	assert.False(t, ve.HasErrors())
	ve.Add("b", "second")
	ve.Add("a", "first")
	assert.True(t, ve.HasErrors())
	assert.Equal(t, "validation failed: a: first; b: second", ve.Error())
	assert.ErrorIs(t, ve, ugibdd.ErrInvalidInput)
}
