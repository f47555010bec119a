package middleware

import (
	"context"

	"github.com/edume/internal/model"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserNameKey contextKey = "user_name"
)

// WithUser кладёт идентичность пользователя в контекст запроса.
func WithUser(ctx context.Context, id, name string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id)
	return context.WithValue(ctx, UserNameKey, name)
}

// GetUserID возвращает user_id из контекста (устанавливается AuthServiceValidate или DevIdentity).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func GetUserName(ctx context.Context) string {
	v, _ := ctx.Value(UserNameKey).(string)
	return v
}

// GetParticipant: текущий пользователь как участник чата. Имя по умолчанию "User".
func GetParticipant(ctx context.Context) model.Participant {
	name := GetUserName(ctx)
	if name == "" {
		name = "User"
	}
	return model.Participant{ID: GetUserID(ctx), Name: name}
}
