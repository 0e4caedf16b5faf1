package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Sessions *SessionRegistry
	History  *LoginHistoryRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool, maxActiveSessions int) *Repositories {
	return &Repositories{
		Sessions: NewSessionRegistry(pool, maxActiveSessions),
		History:  NewLoginHistoryRepository(pool),
	}
}
