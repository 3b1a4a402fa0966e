package models

// Principal — аутентифицированная личность в рамках одного запроса.
// Не сохраняется; строится из Account на каждый запрос.
type Principal struct {
	AccountID   int64
	Username    string
	Email       string
	Enabled     bool
	Authorities []string
}

// HasAnyAuthority сообщает, пересекаются ли полномочия принципала с allowed.
func (p *Principal) HasAnyAuthority(allowed ...string) bool {
	if p == nil {
		return false
	}

	for _, have := range p.Authorities {
		for _, want := range allowed {
			if have == want {
				return true
			}
		}
	}

	return false
}
