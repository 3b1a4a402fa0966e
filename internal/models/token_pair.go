package models

import "time"

// TokenTypeBearer — тип токена в ответе логина.
const TokenTypeBearer = "Bearer"

// TokenPair — пара JWT, выдаваемая при логине и refresh.
//
// Описание:
//   - AccessToken — короткоживущий токен для заголовка Authorization;
//   - RefreshToken — долгоживущий токен для получения новой пары;
//   - ExpiresIn — TTL access-токена;
//   - AccessExpiresAt — момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	TokenType       string
	ExpiresIn       time.Duration
	AccessExpiresAt time.Time
}
